package cmd

import (
	"fmt"

	"github.com/niraliveastro/astro-call-service/internal/application"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fixPendingCmd = &cobra.Command{
	Use:   "fix-pending-calls",
	Short: "Reject pending calls older than PENDING_CALL_TIMEOUT and promote queued ones",
	RunE:  runFixPending,
}

func init() {
	rootCmd.AddCommand(fixPendingCmd)
}

func runFixPending(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	n, err := application.FixPendingCalls(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	log.Info("fix pending calls: ok", zap.Int("fixed", n), zap.Duration("timeout", cfg.PendingCallTimeout))
	fmt.Fprintf(cmd.OutOrStdout(), "fixed %d pending calls\n", n)
	return nil
}
