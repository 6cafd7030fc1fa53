package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Freeeeeet/tutorbook/internal/app"
	"github.com/Freeeeeet/tutorbook/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "tutorbook [command]",
	Short: "Tutoring session booking engine",
	Long: `tutorbook books tutoring sessions against tutors' availability, runs the
session lifecycle and aggregates tutor ratings.

Configuration comes from the environment and an optional .env file.

Examples:
  # Apply migrations and serve the HTTP API
  tutorbook serve

  # Show migration status
  tutorbook migrate status

  # Create a tutor for local testing
  tutorbook user add --username alice --role tutor`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newUserCmd())
}

func main() {
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and wires the application
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", zap.Error(err))
		return nil, err
	}

	return a, nil
}

// shutdown drains notifications and closes connections
func shutdown(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Error("Shutdown finished with errors", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
