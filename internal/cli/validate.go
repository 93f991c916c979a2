package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline and its site configuration without running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := svc.Validate(configFile, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Workflow: %s\n", report.Workflow)
			fmt.Printf("  Jobs: %d (%d endpoints)\n", report.Jobs, report.Endpoints)
			fmt.Println("  Pools:")
			for _, p := range report.Pools {
				fmt.Printf("    %s (%s, %d workers)\n", p.Label, p.Provider, p.Workers())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Run configuration file")
	return cmd
}
