package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	shutdownSecondsEnvVar = "SHUTDOWN_TIMEOUT_SECONDS"
	devSessionSecret      = "dev-only-session-secret"

	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `env:"APP_NAME"  envDefault:"CryptoBoost"`
	AppEnv   string `env:"APP_ENV"   envDefault:"development"`
	Port     string `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// AccessLog enables the plain-text access line next to the audit log.
	AccessLog bool `env:"ACCESS_LOG" envDefault:"true"`

	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`
	SQLitePath   string `env:"SQLITE_PATH"`
	SessionStore string `env:"SESSION_STORE"`

	SessionSecret         string        `env:"SESSION_SECRET"`
	SessionTTL            time.Duration `env:"SESSION_TTL"             envDefault:"24h"`
	SessionResolveTimeout time.Duration `env:"SESSION_RESOLVE_TIMEOUT" envDefault:"5s"`

	IdentityBackendURL string `env:"IDENTITY_BACKEND_URL"`
	IdentityBackendKey string `env:"IDENTITY_BACKEND_KEY"`

	QuoteBaseURL         string        `env:"QUOTE_BASE_URL"         envDefault:"https://rest.coinapi.io/v1"`
	QuoteAPIKey          string        `env:"QUOTE_API_KEY"`
	QuoteCurrency        string        `env:"QUOTE_CURRENCY"         envDefault:"EUR"`
	QuoteRefreshInterval time.Duration `env:"QUOTE_REFRESH_INTERVAL" envDefault:"5m"`
	QuoteTimeout         time.Duration `env:"QUOTE_TIMEOUT"          envDefault:"5s"`

	LoginRateLimit   int           `env:"LOGIN_RATE_LIMIT"   envDefault:"5"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL"    envDefault:"24h"`
	ShutdownPeriod   time.Duration `env:"SHUTDOWN_TIMEOUT"   envDefault:"10s"`
	DemoPassword     string        `env:"DEMO_PASSWORD"      envDefault:"demo123"`
	SeedDemoAccounts *bool         `env:"SEED_DEMO_ACCOUNTS"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.QuoteCurrency = strings.ToUpper(strings.TrimSpace(cfg.QuoteCurrency))

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	}

	if cfg.SessionStore == "" {
		cfg.SessionStore = cfg.defaultStore()
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = devSessionSecret
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when SESSION_STORE=%s", StoreRedis)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set when SESSION_STORE=%s", StoreSQLite)
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	if !c.IsDev() && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.QuoteRefreshInterval <= 0 {
		return fmt.Errorf("QUOTE_REFRESH_INTERVAL must be positive")
	}
	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT must be positive")
	}
	if c.QuoteCurrency == "" {
		return fmt.Errorf("QUOTE_CURRENCY must not be empty")
	}
	return nil
}

func (c Config) defaultStore() string {
	switch {
	case c.SQLitePath != "":
		return StoreSQLite
	case c.RedisURL != "":
		return StoreRedis
	default:
		return StoreMemory
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// BackendConfigured reports whether an external identity backend is configured.
// Both the endpoint and the access key must be present; otherwise the portal
// runs in standalone mode.
func (c Config) BackendConfigured() bool {
	return strings.TrimSpace(c.IdentityBackendURL) != "" && strings.TrimSpace(c.IdentityBackendKey) != ""
}

// ShouldSeedDemo reports whether demo accounts are provisioned at startup.
func (c Config) ShouldSeedDemo() bool {
	if c.SeedDemoAccounts != nil {
		return *c.SeedDemoAccounts
	}
	return c.IsDev()
}
