// Package main provides donorctl, an operator CLI for the blood alert engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blood-alert-engine/internal/app"
	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/utils"
)

var (
	logLevel string
	svc      *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "donorctl",
		Short: "Blood alert engine CLI - manage donors and run matches",
		Long:  `Operator tooling for the blood alert engine: schema migration, demo data, geo index rebuilds and ad-hoc donor matching.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if svc != nil {
				svc.Close()
			}
			utils.Sync()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (defaults to LOG_LEVEL)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(reindexCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// initApp loads configuration and connects every service.
func initApp(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := utils.GetLogger()
	logger.Debug("Configuration loaded", zap.String("stage", cfg.Stage))

	svc, err = app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.DB.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the Redis geo index from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := svc.Donors.Reindex(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to rebuild index: %w", err)
			}
			fmt.Printf("Indexed %d donors\n", n)
			return nil
		},
	}
}
