// Package config loads ledger configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Outbox    OutboxConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	ConnMaxLifetime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	Migrate         bool
}

// LedgerConfig holds balance engine configuration
type LedgerConfig struct {
	RetryBaseDelay time.Duration
	FaultRate      float64
	MaxRetries     int
}

// OutboxConfig holds ledger event publishing configuration
type OutboxConfig struct {
	RabbitMQURL string
	Exchange    string
	Schedule    string
	StaleAfter  time.Duration
	BatchSize   int
	Enabled     bool
}

// ReconcileConfig holds the balance reconciliation job configuration
type ReconcileConfig struct {
	Schedule string
	Enabled  bool
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level string // debug, info, warn, error
}

// Load loads configuration from a .env file, if present, and environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("OPS_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			Migrate:         v.GetBool("DB_MIGRATE"),
		},
		Ledger: LedgerConfig{
			MaxRetries:     v.GetInt("LEDGER_MAX_RETRIES"),
			RetryBaseDelay: v.GetDuration("LEDGER_RETRY_BASE_DELAY"),
			FaultRate:      v.GetFloat64("LEDGER_FAULT_RATE"),
		},
		Outbox: OutboxConfig{
			Enabled:     v.GetBool("OUTBOX_ENABLED"),
			Schedule:    v.GetString("OUTBOX_SCHEDULE"),
			BatchSize:   v.GetInt("OUTBOX_BATCH_SIZE"),
			StaleAfter:  v.GetDuration("OUTBOX_STALE_AFTER"),
			Exchange:    v.GetString("OUTBOX_EXCHANGE"),
			RabbitMQURL: v.GetString("RABBITMQ_URL"),
		},
		Reconcile: ReconcileConfig{
			Enabled:  v.GetBool("RECONCILE_ENABLED"),
			Schedule: v.GetString("RECONCILE_SCHEDULE"),
		},
		Logger: LoggerConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("OPS_PORT", "8081")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "60s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ledger")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("LEDGER_MAX_RETRIES", 5)
	v.SetDefault("LEDGER_RETRY_BASE_DELAY", "10ms")
	v.SetDefault("LEDGER_FAULT_RATE", 0.0)

	v.SetDefault("OUTBOX_ENABLED", true)
	v.SetDefault("OUTBOX_SCHEDULE", "@every 2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_STALE_AFTER", "2m")
	v.SetDefault("OUTBOX_EXCHANGE", "ledger_events")
	v.SetDefault("RABBITMQ_URL", "")

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_SCHEDULE", "@every 15m")

	v.SetDefault("LOG_LEVEL", "info")
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("ops server port cannot be empty")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}

	if c.Ledger.FaultRate < 0 || c.Ledger.FaultRate > 1 {
		return fmt.Errorf("fault rate must be between 0 and 1, got %f", c.Ledger.FaultRate)
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Outbox.Enabled {
		if c.Outbox.BatchSize <= 0 {
			return fmt.Errorf("outbox batch size must be positive")
		}
		if c.Outbox.Exchange == "" {
			return fmt.Errorf("outbox exchange cannot be empty")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
