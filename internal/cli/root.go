// Package cli implements the gridflow command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/internal/service"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	svc    *service.Service
)

// NewRootCmd creates the root cobra command for the gridflow CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gridflow",
		Short: "gridflow — run job DAGs on compute pools",
		Long:  "gridflow submits, restarts, and validates pipeline job graphs on local or batch compute sites.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			svc = service.New(logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newRestartCmd(),
		newValidateCmd(),
	)

	return root
}
