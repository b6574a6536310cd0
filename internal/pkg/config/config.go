package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Abdullah2434/backend/internal/pkg/env"
)

type App struct {
	Host string `validate:"required"`
	Port string `validate:"required,numeric"`
}

type Database struct {
	Driver      string `validate:"oneof=mysql postgres"`
	Host        string `validate:"required"`
	Port        string `validate:"required,numeric"`
	User        string `validate:"required"`
	Password    string
	Name        string `validate:"required"`
	AutoMigrate bool
}

type Cache struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
}

// Addr is the host:port of the cache server.
func (c Cache) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Store selects where subscriptions, ledger rows and processed markers
// live. The memory backend loses everything on restart.
type Store struct {
	Backend string `validate:"oneof=sql memory"`
}

type Lock struct {
	Backend string        `validate:"oneof=memory redis"`
	TTL     time.Duration `validate:"gt=0"`
}

type Billing struct {
	StripeSecretKey  string        `validate:"required"`
	WebhookSecrets   []string      `validate:"min=1,dive,required"`
	WebhookTolerance time.Duration `validate:"gte=0"`
	WebhookTimeout   time.Duration `validate:"gt=0"`
	// PlanPrices maps plan id to provider price id.
	PlanPrices map[string]string
	PlansFile  string
	// SweepInterval of zero disables the stale subscription sweep.
	SweepInterval time.Duration `validate:"gte=0"`
	SweepGrace    time.Duration `validate:"gte=0"`
	SweepBatch    int           `validate:"gt=0"`
}

type Auth struct {
	JWTSecret      string `validate:"required,min=16"`
	InternalAPIKey string `validate:"required,min=16"`
}

// Config is the process configuration, read once at startup.
type Config struct {
	App      App
	Database Database
	Cache    Cache
	Store    Store
	Lock     Lock
	Billing  Billing
	Auth     Auth
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		App: App{
			Host: env.GetEnv("APP_HOST", "0.0.0.0"),
			Port: env.GetEnv("APP_PORT", "8080"),
		},
		Database: LoadDatabase(),
		Cache: Cache{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Store: Store{
			Backend: strings.ToLower(env.GetEnv("STORE_BACKEND", "sql")),
		},
		Lock: Lock{
			Backend: strings.ToLower(env.GetEnv("LOCK_BACKEND", "redis")),
			TTL:     env.GetEnvDuration("LOCK_TTL", 30*time.Second),
		},
		Billing: Billing{
			StripeSecretKey:  env.GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecrets:   splitList(env.GetEnv("WEBHOOK_SECRET", "")),
			WebhookTolerance: env.GetEnvDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
			WebhookTimeout:   env.GetEnvDuration("WEBHOOK_TIMEOUT", 20*time.Second),
			PlanPrices:       map[string]string{},
			PlansFile:        env.GetEnv("PLANS_FILE", ""),
			SweepInterval:    env.GetEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
			SweepGrace:       env.GetEnvDuration("SWEEP_GRACE", time.Hour),
			SweepBatch:       env.GetEnvInt("SWEEP_BATCH", 100),
		},
		Auth: Auth{
			JWTSecret:      env.GetEnv("JWT_SECRET", ""),
			InternalAPIKey: env.GetEnv("INTERNAL_API_KEY", ""),
		},
	}
	for _, plan := range []string{"basic", "growth", "professional"} {
		if price := env.GetEnv("PLAN_PRICE_"+strings.ToUpper(plan), ""); price != "" {
			cfg.Billing.PlanPrices[plan] = price
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings. Used by tools that do not
// need the rest of the configuration.
func LoadDatabase() Database {
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", "mysql"))
	return Database{
		Driver:      driver,
		Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:        env.GetEnv("DB_PORT", defaultDBPort(driver)),
		User:        env.GetEnv("DB_USER", "billing"),
		Password:    env.GetEnv("DB_PASSWORD", ""),
		Name:        env.GetEnv("DB_NAME", "billing"),
		AutoMigrate: env.GetEnvBool("DB_AUTO_MIGRATE", false),
	}
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func defaultDBPort(driver string) string {
	if strings.EqualFold(driver, "postgres") {
		return "5432"
	}
	return "3306"
}

// splitList parses a comma separated list. Several webhook secrets may be
// active while one is being rotated.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
