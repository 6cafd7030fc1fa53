package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	Store       string `mapstructure:"STORE"`
	DBDSN       string `mapstructure:"DB_DSN"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	// Location is the zone bookings are projected into for availability matching.
	Location *time.Location `mapstructure:"TIMEZONE"`

	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	ReminderLead  time.Duration `mapstructure:"REMINDER_LEAD"`

	NotifySinks     []string `mapstructure:"NOTIFY_SINKS"`
	NotifyQueueSize int      `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifyWorkers   int      `mapstructure:"NOTIFY_WORKERS"`
	TelegramToken   string   `mapstructure:"TELEGRAM_TOKEN"`
	TelegramBot     bool     `mapstructure:"TELEGRAM_BOT"` // poll for commands and button presses
	RedisURL        string   `mapstructure:"REDIS_URL"`
	RedisStream     string   `mapstructure:"REDIS_STREAM"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv читает конфигурацию из переменных окружения
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("ENV", "development"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		Store:         getEnv("STORE", StorePostgres),
		DBDSN:         os.Getenv("DB_DSN"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		NotifySinks:   splitList(getEnv("NOTIFY_SINKS", "log")),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		RedisURL:      os.Getenv("REDIS_URL"),
		RedisStream:   getEnv("REDIS_STREAM", "tutorbook:events"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderLead, err = durationEnv("REMINDER_LEAD", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.NotifyQueueSize, err = intEnv("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.NotifyWorkers, err = intEnv("NOTIFY_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.TelegramBot, err = boolEnv("TELEGRAM_BOT", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	for _, sink := range c.NotifySinks {
		switch sink {
		case "log":
		case "telegram":
			if c.TelegramToken == "" {
				return fmt.Errorf("TELEGRAM_TOKEN is required for the telegram sink")
			}
		case "redis":
			if c.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required for the redis sink")
			}
		default:
			return fmt.Errorf("unknown notification sink %q", sink)
		}
	}

	if c.TelegramBot && c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required when TELEGRAM_BOT is enabled")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.NotifyQueueSize <= 0 || c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE and NOTIFY_WORKERS must be positive")
	}
	return nil
}

// HasSink проверяет включён ли канал уведомлений
func (c *Config) HasSink(name string) bool {
	for _, s := range c.NotifySinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
