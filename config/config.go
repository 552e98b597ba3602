// Package config loads service configuration from the environment.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/pesio-ai/be-gl-ledger/errors"
)

// Config is the root configuration for the ledger core.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	NATS     NATSConfig
}

// ServiceConfig identifies the running service in logs and events.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	LockTimeout time.Duration
	Migrate     bool
}

// NATSConfig holds event-publishing settings. A blank URL disables publishing.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVICE_NAME", "be-gl-ledger")
	v.SetDefault("SERVICE_VERSION", "dev")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "gl_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "30m")
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "5m")
	v.SetDefault("DB_LOCK_TIMEOUT", "10s")
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "ledger.gl")

	cfg := &Config{
		Service: ServiceConfig{
			Name:        v.GetString("SERVICE_NAME"),
			Version:     v.GetString("SERVICE_VERSION"),
			Environment: v.GetString("ENVIRONMENT"),
			LogLevel:    v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			Database:    v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSL_MODE"),
			MaxConns:    v.GetInt32("DB_MAX_CONNS"),
			MinConns:    v.GetInt32("DB_MIN_CONNS"),
			MaxConnTime: v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxIdleTime: v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			LockTimeout: v.GetDuration("DB_LOCK_TIMEOUT"),
			Migrate:     v.GetBool("DB_MIGRATE"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return errors.InvalidInput("DB_HOST", "database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return errors.InvalidInput("DB_PORT", "database port must be between 1 and 65535")
	}
	if c.Database.Database == "" {
		return errors.InvalidInput("DB_NAME", "database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return errors.InvalidInput("DB_MAX_CONNS", "max connections cannot be lower than min connections")
	}
	return nil
}
