package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET, required"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	// AdminActor is granted Administrator at start-up.
	AdminActor string `env:"ADMIN_ACTOR, default=admin"`

	Store  StoreConfig
	Mongo  MongoConfig
	SQLite SQLiteConfig
	Redis  RedisConfig
	Notify NotifyConfig
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER, default=memory"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=custody_tracker"`
}

type SQLiteConfig struct {
	DSN string `env:"SQLITE_DSN, default=file:custody.db?_pragma=busy_timeout(5000)"`
}

// RedisConfig is optional: an empty Addr disables the Redis notification sink.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

type NotifyConfig struct {
	Stream  string `env:"NOTIFY_STREAM,  default=custody:notifications"`
	Workers int    `env:"NOTIFY_WORKERS, default=4"`

	// Delay bounds between attempts when a sink rejects a notification.
	RetryInitial time.Duration `env:"NOTIFY_RETRY_INITIAL, default=100ms"`
	RetryMax     time.Duration `env:"NOTIFY_RETRY_MAX,     default=10s"`
}

// Pretty reports whether logs should be human-readable console output.
func (c *Config) Pretty() bool {
	return c.Env == "development"
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive, got %d", c.Notify.Workers)
	}
	if c.Notify.RetryInitial <= 0 || c.Notify.RetryMax < c.Notify.RetryInitial {
		return fmt.Errorf("NOTIFY_RETRY_INITIAL must be positive and not exceed NOTIFY_RETRY_MAX")
	}
	return nil
}
