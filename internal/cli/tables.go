package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"carequery/internal/tools"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables in the patient database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if remoteMode() {
			return fmt.Errorf("tables inspects the database directly; not available with --server")
		}
		ctx := context.Background()
		s, err := getService(ctx)
		if err != nil {
			return err
		}

		out, err := s.Registry().Run(ctx, tools.ListTablesName, "{}")
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}
