package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

type runQueryArgs struct {
	Query string `json:"query"`
}

// runQueryTool executes a read-only SQL statement. The db layer's guard
// rejects writes before they reach the database, regardless of what the
// model was instructed to do.
func runQueryTool(deps *Dependencies) descriptor {
	def := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        RunQueryName,
			Description: "Execute a read-only SQL query against the patient database and return the result rows.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The SQL query to execute.",
					},
				},
				"required": []string{"query"},
			},
		},
	}

	return descriptor{
		def: def,
		run: func(ctx context.Context, rawArgs string) (string, error) {
			var args runQueryArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("decode run_query arguments: %w", err)
			}
			if args.Query == "" {
				return "", fmt.Errorf("run_query requires a query")
			}
			return deps.DB.RunQuery(ctx, args.Query)
		},
	}
}
