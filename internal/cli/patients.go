package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"carequery/internal/client"
	"carequery/internal/service"
)

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "List the patient directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		patients := service.Patients()
		if remoteMode() {
			var err error
			patients, err = client.New(serverURL).Patients(context.Background())
			if err != nil {
				return err
			}
		}
		for _, p := range patients {
			fmt.Printf("%4d  %s\n", p.ID, p.Name)
		}
		return nil
	},
}
