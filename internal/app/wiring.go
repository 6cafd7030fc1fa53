package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/config"
	"github.com/Freeeeeet/tutorbook/internal/controller"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/repository/memory"
	"github.com/Freeeeeet/tutorbook/internal/repository/postgres"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the wired engine: store, notification pipeline and services
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store      repository.Store
	Pool       *pgxpool.Pool // nil for the memory store
	Dispatcher *notify.Dispatcher

	Users        *service.UserService
	Availability *service.AvailabilityService
	Sessions     *service.SessionService
	Ratings      *service.RatingService

	closers []func() error
}

// New собирает приложение по конфигурации. The dispatcher is created but not
// started; call Start before emitting events.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.Users = service.NewUserService(a.Store, logger.Named("users"))

	sinks, err := a.buildSinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = notify.NewDispatcher(sinks, notify.DispatcherOptions{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
	}, logger.Named("notify"))

	opts := service.Options{
		Now:      time.Now,
		Location: cfg.Location,
		Emitter:  a.Dispatcher,
	}
	a.Availability = service.NewAvailabilityService(a.Store, logger.Named("availability"))
	a.Sessions = service.NewSessionService(a.Store, opts, logger.Named("sessions"))
	a.Ratings = service.NewRatingService(a.Store, opts, logger.Named("ratings"))

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store {
	case config.StoreMemory:
		a.Logger.Warn("Using in-memory store, data is lost on exit")
		a.Store = memory.NewStore(time.Now)
		return nil
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, a.Config.GetDBDSN())
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.Pool = pool
		a.Store = postgres.NewStore(pool, a.Logger.Named("store"))
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		a.Logger.Info("Connected to database")
		return nil
	}
	return fmt.Errorf("unknown store %q", a.Config.Store)
}

func (a *App) buildSinks(ctx context.Context) ([]notify.Sink, error) {
	var sinks []notify.Sink
	for _, name := range a.Config.NotifySinks {
		switch name {
		case "log":
			sinks = append(sinks, notify.NewLogSink(a.Logger.Named("events")))
		case "telegram":
			sink, err := notify.NewTelegramSink(a.Config.TelegramToken, a.Users, a.Logger.Named("telegram"))
			if err != nil {
				return nil, fmt.Errorf("create telegram sink: %w", err)
			}
			sinks = append(sinks, sink)
		case "redis":
			sink, err := notify.NewRedisStreamSink(ctx, a.Config.RedisURL, a.Config.RedisStream)
			if err != nil {
				return nil, fmt.Errorf("create redis sink: %w", err)
			}
			a.closers = append(a.closers, sink.Close)
			sinks = append(sinks, sink)
		default:
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}
	return sinks, nil
}

// Start запускает доставку уведомлений
func (a *App) Start(ctx context.Context) {
	a.Dispatcher.Start(ctx)
}

// Bot создаёт Telegram контроллер поверх сервисов приложения
func (a *App) Bot() (*controller.BotController, error) {
	if a.Config.TelegramToken == "" {
		return nil, errors.New("telegram bot needs TELEGRAM_TOKEN")
	}

	b, err := bot.New(a.Config.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return controller.NewBotController(b, a.Users, a.Sessions, a.Config.Location, a.Logger.Named("bot")), nil
}

// Migrator returns a goose migrator over the app's pool
func (a *App) Migrator() (*Migrator, error) {
	if a.Pool == nil {
		return nil, errors.New("migrations need the postgres store")
	}
	return NewMigrator(a.Pool, a.Config.MigrationsDir, a.Logger.Named("migrate"))
}

// Close drains pending notifications and releases connections in reverse order
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
