package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/api"
	"github.com/Freeeeeet/tutorbook/internal/app"
	"github.com/Freeeeeet/tutorbook/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run background jobs",
		Long: `Serve the HTTP API. The background scheduler completes elapsed sessions
every SWEEP_INTERVAL and sends reminders REMINDER_LEAD ahead of confirmed sessions.
With TELEGRAM_BOT=true the Telegram bot is polled for commands and button presses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations before serving (postgres store only)")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer shutdown(a)

	logger := a.Logger
	logger.Info("Starting tutorbook",
		zap.String("environment", a.Config.Environment),
		zap.String("store", a.Config.Store),
		zap.String("timezone", a.Config.Location.String()),
		zap.Strings("notify_sinks", a.Config.NotifySinks))

	if migrate && a.Config.Store == config.StorePostgres {
		if err := runMigrations(ctx, a); err != nil {
			return err
		}
	}

	a.Start(ctx)

	if a.Config.TelegramBot {
		if err := startBot(ctx, a); err != nil {
			return err
		}
	}

	scheduler := app.NewScheduler(a.Sessions, a.Config.SweepInterval, a.Config.ReminderLead, logger.Named("scheduler"))
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr: a.Config.HTTPAddr,
		Handler: api.NewServer(api.Services{
			Availability: a.Availability,
			Sessions:     a.Sessions,
			Ratings:      a.Ratings,
		}, a.Config.CORSOrigins, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func startBot(ctx context.Context, a *app.App) error {
	ctrl, err := a.Bot()
	if err != nil {
		return err
	}
	if err := ctrl.RegisterHandlers(ctx); err != nil {
		return fmt.Errorf("register bot handlers: %w", err)
	}

	go ctrl.Start(ctx)
	return nil
}

func runMigrations(ctx context.Context, a *app.App) error {
	migrator, err := a.Migrator()
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Run(ctx)
}
