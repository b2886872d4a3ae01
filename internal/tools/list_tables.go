package tools

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// listTablesTool returns all table names in the connected schema. It takes
// no arguments.
func listTablesTool(deps *Dependencies) descriptor {
	def := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        ListTablesName,
			Description: "List the names of every table in the patient database.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}

	return descriptor{
		def: def,
		run: func(ctx context.Context, _ string) (string, error) {
			return deps.DB.ListTables(ctx)
		},
	}
}
