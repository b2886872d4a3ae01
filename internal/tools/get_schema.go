package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

type getSchemaArgs struct {
	TableNames []string `json:"table_names"`
}

// getSchemaTool returns column definitions and sample rows for the
// requested tables.
func getSchemaTool(deps *Dependencies) descriptor {
	def := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        GetSchemaName,
			Description: "Get the schema (CREATE TABLE definition and sample rows) for the named tables.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table_names": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Names of the tables to describe.",
					},
				},
				"required": []string{"table_names"},
			},
		},
	}

	return descriptor{
		def: def,
		run: func(ctx context.Context, rawArgs string) (string, error) {
			var args getSchemaArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				// Some models pass a bare string instead of an array.
				var loose struct {
					TableNames string `json:"table_names"`
				}
				if err2 := json.Unmarshal([]byte(rawArgs), &loose); err2 != nil || loose.TableNames == "" {
					return "", fmt.Errorf("decode get_schema arguments: %w", err)
				}
				args.TableNames = []string{loose.TableNames}
			}
			if len(args.TableNames) == 0 {
				return "", fmt.Errorf("get_schema requires at least one table name")
			}
			return deps.DB.TableSchema(ctx, args.TableNames)
		},
	}
}
