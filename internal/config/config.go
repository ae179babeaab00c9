package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

const devSecret = "dev-secret-change-in-production"

// Push policies for the notification dispatcher.
const (
	PushSingle = "single"
	PushList   = "list"
)

var (
	ErrProductionSecret = errors.New("JWT_SECRET must be set in production environment")
	ErrUnknownDriver    = errors.New("DATABASE_DRIVER must be mysql or sqlite")
	ErrUnknownPolicy    = errors.New("PUSH_POLICY must be single or list")
)

type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	DatabaseDriver string        `env:"DATABASE_DRIVER" envDefault:"mysql"`
	DatabaseDSN    string        `env:"DATABASE_DSN" envDefault:"root:password@tcp(127.0.0.1:3306)/herald?parseTime=true"`
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-change-in-production"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	ResetTTL       time.Duration `env:"RESET_TTL" envDefault:"15m"`
	ResetURLBase   string        `env:"RESET_URL_BASE" envDefault:"http://localhost:8080/reset-password"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"no-reply@herald.local"`

	RedisURL            string        `env:"REDIS_URL"`
	HashWorkers         int           `env:"HASH_WORKERS"`
	PushPolicy          string        `env:"PUSH_POLICY" envDefault:"single"`
	UserCacheSize       int           `env:"USER_CACHE_SIZE" envDefault:"1024"`
	UserCacheTTL        time.Duration `env:"USER_CACHE_TTL" envDefault:"5m"`
	LedgerPurgeSchedule string        `env:"LEDGER_PURGE_SCHEDULE" envDefault:"@every 10m"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = runtime.NumCPU()
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Env == "production" && c.JWTSecret == devSecret {
		return ErrProductionSecret
	}
	switch c.DatabaseDriver {
	case "mysql", "sqlite":
	default:
		return ErrUnknownDriver
	}
	switch c.PushPolicy {
	case PushSingle, PushList:
	default:
		return ErrUnknownPolicy
	}
	return nil
}
