package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"carequery/internal/client"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server usage statistics",
	Long: `Show cycle, model-call, and tool-call statistics from a running
server. Requires --server or CAREQUERY_SERVER_URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !remoteMode() {
			return fmt.Errorf("stats reads a running server; set --server or CAREQUERY_SERVER_URL")
		}

		snap, err := client.New(serverURL).Stats(context.Background())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}
