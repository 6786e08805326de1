package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Mongo     MongoConfig
	Postgres  PostgresConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	// Mode is the gin mode: debug, release or test.
	Mode string
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	// Driver is one of memory, file, mongo or postgres.
	Driver string
	Dir    string
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	DSN string
}

// AuthConfig holds the identity configuration. An empty secret trusts the
// X-User-ID header.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RateLimitConfig bounds participation requests per user
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int
}

// SchedulerConfig holds maintenance job settings
type SchedulerConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Retention     time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Verbose bool
	File    string
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Load reads configuration from .env, an optional config file and
// PRIZEDRAW_* environment variables, in increasing precedence. An empty
// configFile searches for config.yaml in . and ./config.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("PRIZEDRAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.dir", "data")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "prizedraw")
	v.SetDefault("mongo.collection", "activities")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("scheduler.flush_interval", 5*time.Minute)
	v.SetDefault("scheduler.retention", 0)
	v.SetDefault("log.verbose", false)
	v.SetDefault("log.file", "")
}

// Validate checks combinations viper cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Postgres.DSN == "" {
		return errors.New("config: postgres.dsn is required for the postgres store")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit values must not be negative")
	}
	return nil
}
