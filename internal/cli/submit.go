package cli

import (
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "submit <pipeline.yaml>",
		Short: "Submit a pipeline and run it to completion",
		Long:  "Build the job graph from the pipeline description, persist a restartable snapshot under the configured submitPath, and run every job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Submit(cmd.Context(), configFile, args[0])
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Run configuration file")
	return cmd
}
