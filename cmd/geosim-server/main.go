package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daniacca/geosim/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "geosim-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadServerConfig(args)
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "geosim-server",
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warnf("Tracing shutdown failed: %v", err)
		}
	}()

	srv := NewServer(logger)
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warnf("Server close failed: %v", err)
		}
	}()

	if cfg.RunConfigFile != "" {
		rc, err := loadRunConfigFromFile(cfg.RunConfigFile)
		if err != nil {
			return fmt.Errorf("load run config %s: %w", cfg.RunConfigFile, err)
		}
		if err := srv.createBootRun(ctx, cfg.DefaultRunID, rc); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("geosim-server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(sctx)
}
