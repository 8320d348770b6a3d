// Package config loads engine configuration. Values layer in order:
// compiled defaults, then an optional YAML file, then environment
// variables. Environment wins.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DefaultPath is consulted when COIN_ENGINE_CONFIG is unset.
const DefaultPath = "config/engine.yaml"

// Config is the full engine configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Rewards  RewardsConfig  `yaml:"rewards"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory store suits local
	// development and tests only; it loses state on restart.
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	// Addr empty keeps the guest ledger in process memory.
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	// GuestTTLHours bounds how long an abandoned device balance lingers.
	GuestTTLHours int `yaml:"guest_ttl_hours" env:"REDIS_GUEST_TTL_HOURS"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

type RewardsConfig struct {
	// IntervalSeconds is the passive accrual period.
	IntervalSeconds int `yaml:"interval_seconds" env:"REWARD_INTERVAL_SECONDS"`
	// CoinsPerInterval is the passive credit per elapsed interval.
	CoinsPerInterval int64 `yaml:"coins_per_interval" env:"REWARD_COINS_PER_INTERVAL"`
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens minted by the identity provider.
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	// AdminAPIKey guards the admin review and authoring endpoints.
	AdminAPIKey string `yaml:"admin_api_key" env:"ADMIN_API_KEY"`
	// AuditPath, when set, appends admin actions to a JSONL file in
	// addition to the in-memory audit ring.
	AuditPath string `yaml:"audit_path" env:"ADMIN_AUDIT_PATH"`
}

// Interval returns the accrual period as a duration.
func (r RewardsConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:       "memory",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			GuestTTLHours: 24 * 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Rewards: RewardsConfig{
			IntervalSeconds:  10,
			CoinsPerInterval: 1,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// COIN_ENGINE_CONFIG (or config/engine.yaml when present), and finally the
// environment.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("COIN_ENGINE_CONFIG")
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Driver != "memory" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for the postgres driver")
	}
	if c.Rewards.IntervalSeconds <= 0 {
		return fmt.Errorf("reward interval must be positive")
	}
	if c.Rewards.CoinsPerInterval <= 0 {
		return fmt.Errorf("coins per interval must be positive")
	}
	return nil
}
