package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	etl "github.com/whois-cat/ETL/internal/app"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single pipeline cycle and exit",
	Long: `Run one cycle over every kind and exit. The exit status is non-zero when the
cycle aborted or any kind failed.`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, logger, sync, err := bootstrap()
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := etl.New(cfg, logger)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultGracefulTimeout)
		defer cancel()
		if a.Coordinator != nil {
			_ = a.Coordinator.Stop(stopCtx)
		}
		if err := a.Stop(stopCtx); err != nil {
			logger.WithContext(stopCtx).WithError(err).Warn("Dependency shutdown failed")
		}
	}()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	result, err := a.Coordinator.RunCycle(ctx)
	for _, kr := range result.Kinds {
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s rows=%d watermark=%s last_id=%s\n", kr.Kind, kr.Rows, kr.Watermark.Modified.Format(time.RFC3339Nano), kr.Watermark.ID)
	}
	if err != nil {
		return err
	}
	if failed := result.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d kind(s) failed, first: %s: %w", len(failed), failed[0].Kind, failed[0].Err)
	}
	return nil
}
