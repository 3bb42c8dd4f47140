// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/oncallops/flare/pkg/types"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Database      DatabaseConfig           `yaml:"database"`
	Engine        EngineConfig             `yaml:"engine"`
	Rules         RulesConfig              `yaml:"rules"`
	Suppression   []domain.SuppressionRule `yaml:"suppression"`
	Notifications NotificationsConfig      `yaml:"notifications"`
	Tracing       TracingConfig            `yaml:"tracing"`
	Logging       LoggingConfig            `yaml:"logging"`
}

// ServerConfig defines the Echo HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig selects and configures the alert store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // memory, postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN returns a PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// EngineConfig defines evaluation loop settings.
type EngineConfig struct {
	// Schedule is a six-field cron expression, seconds first.
	Schedule  string `yaml:"schedule"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	// SourceURL is the metric snapshot endpoint for pull-model evaluation.
	// Empty disables the scheduler; snapshots then arrive via the ingest API.
	SourceURL   string `yaml:"source_url"`
	SourceToken string `yaml:"source_token"`
}

// RulesConfig locates rule definitions on disk.
type RulesConfig struct {
	Dir string `yaml:"dir"`
}

// NotificationsConfig defines delivery targets.
type NotificationsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig defines the outbound webhook dispatcher.
type WebhookConfig struct {
	Enabled   bool    `yaml:"enabled"`
	URL       string  `yaml:"url"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// TracingConfig defines OpenTelemetry export settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC, host:port
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyEngineDefaults(&cfg.Engine)
	applyWebhookDefaults(&cfg.Notifications.Webhook)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Driver == "" {
		d.Driver = "memory"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 10
	}
}

func applyEngineDefaults(e *EngineConfig) {
	if e.Schedule == "" {
		e.Schedule = "*/15 * * * * *"
	}
	if e.Workers == 0 {
		e.Workers = 4
	}
	if e.QueueSize == 0 {
		e.QueueSize = 256
	}
}

func applyWebhookDefaults(w *WebhookConfig) {
	if w.PerSecond == 0 {
		w.PerSecond = 5.0
	}
	if w.Burst == 0 {
		w.Burst = 10
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Database.Driver {
	case "memory":
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if cfg.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database.name is required"))
		}
		if cfg.Database.User == "" {
			errs = append(errs, fmt.Errorf("database.user is required"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"database.driver must be one of: memory, postgres (got %q)",
			cfg.Database.Driver,
		))
	}

	if cfg.Engine.Workers < 1 {
		errs = append(errs, fmt.Errorf("engine.workers must be positive"))
	}

	if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL == "" {
		errs = append(errs, fmt.Errorf(
			"notifications.webhook.url is required when the webhook is enabled",
		))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf(
			"tracing.endpoint is required when tracing is enabled",
		))
	}

	for i, s := range cfg.Suppression {
		if s.Pattern == "" {
			errs = append(errs, fmt.Errorf("suppression[%d].pattern is required", i))
		}
		if s.Field == "" {
			errs = append(errs, fmt.Errorf("suppression[%d].field is required", i))
		}
		if s.Duration <= 0 {
			errs = append(errs, fmt.Errorf("suppression[%d].duration must be positive", i))
		}
	}

	return errors.Join(errs...)
}
