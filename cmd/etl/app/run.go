package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	etl "github.com/whois-cat/ETL/internal/app"
	"github.com/whois-cat/ETL/pkg/middleware"
)

const defaultGracefulTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pipeline cycles until interrupted",
	Long: `Start every dependency, serve health, status and metrics over HTTP, and run a
pipeline cycle every POLL_INTERVAL until SIGINT or SIGTERM.`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, logger, sync, err := bootstrap()
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := etl.New(cfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.RequestContext())
	e.Use(middleware.Logger(logger))
	a.Health.RegisterRoutes(e)

	// health answers while dependencies are still coming up
	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithContext(ctx).Infof("Serving health and metrics on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultGracefulTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.WithContext(shutdownCtx).WithError(err).Warn("HTTP server shutdown failed")
		}
		if err := a.Stop(shutdownCtx); err != nil {
			logger.WithContext(shutdownCtx).WithError(err).Warn("Dependency shutdown failed")
		}
	}
	defer shutdown()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.Coordinator.Run(ctx) }()

	select {
	case err := <-serverErr:
		stop()
		<-runErr
		return fmt.Errorf("http server failed: %w", err)
	case err := <-runErr:
		logger.WithContext(ctx).Info("Shutting down")
		return err
	}
}
