package cli

import (
	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <outPrefix>",
		Short: "Resume an interrupted run",
		Long:  "Restore the workflow snapshot from the run's output prefix and resume it; jobs recorded as complete in the checkpoint are not rerun.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Restart(cmd.Context(), args[0])
		},
	}
}
