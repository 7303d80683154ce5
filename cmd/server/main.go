// Package main runs the blood alert engine HTTP API.
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

	"go.uber.org/zap"

	"blood-alert-engine/internal/app"
	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/handlers"
	"blood-alert-engine/internal/server"
	"blood-alert-engine/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer utils.Sync()
	logger := utils.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.DB.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if a.Index != nil {
		n, err := a.Donors.Reindex(ctx)
		if err != nil {
			logger.Warn("Failed to rebuild geo index", zap.Error(err))
		} else {
			logger.Info("Geo index rebuilt", zap.Int("donors", n))
		}
	}

	srv := server.New(a.Donors, a.Alerts,
		server.WithHealth(handlers.NewHealthHandler(a.DB, cfg.Stage, "")),
		server.WithUploads(a.Storage),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithLogger(logger.Named("http")),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Blood alert engine API listening",
			zap.String("addr", httpServer.Addr),
			zap.String("stage", cfg.Stage))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
