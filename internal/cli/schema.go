package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"carequery/internal/tools"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <table>...",
	Short: "Show table definitions with sample rows",
	Long: `Show the CREATE statement and a few sample rows for the named
tables, in the same form the agent sees them.

Example:
  carequery schema patients treatments`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if remoteMode() {
			return fmt.Errorf("schema inspects the database directly; not available with --server")
		}
		ctx := context.Background()
		s, err := getService(ctx)
		if err != nil {
			return err
		}

		req, err := json.Marshal(map[string]any{"table_names": args})
		if err != nil {
			return err
		}
		out, err := s.Registry().Run(ctx, tools.GetSchemaName, string(req))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}
