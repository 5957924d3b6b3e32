// Package config loads storeaudit settings from YAML and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/storeaudit/internal/utils"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Notify   NotifyConfig   `yaml:"notify"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SessionIdle closes editing sessions nobody touched for this long.
	SessionIdle time.Duration `yaml:"session_idle"`
	CORSOrigins []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	MigrationsDir string `yaml:"migrations_dir"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// NotifyConfig configures finalize notifications. An empty URL logs them.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type AuditConfig struct {
	RequiredPhotoTypes []string      `yaml:"required_photo_types"`
	DebounceDelay      time.Duration `yaml:"debounce_delay"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config that runs locally on SQLite.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			SessionIdle:     30 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:storeaudit.db?_foreign_keys=on",
		},
		Auth: AuthConfig{
			JWTSecret: "storeaudit-dev-secret",
		},
		Notify: NotifyConfig{
			Subject: "storeaudit.audit.finalized",
		},
		Audit: AuditConfig{
			RequiredPhotoTypes: []string{"facade", "interior"},
			DebounceDelay:      time.Second,
			WriteTimeout:       10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or pgx, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Audit.DebounceDelay <= 0 {
		return fmt.Errorf("audit.debounce_delay must be positive")
	}
	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit.write_timeout must be positive")
	}
	if c.Server.SessionIdle <= 0 {
		return fmt.Errorf("server.session_idle must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load reads path when given, applies STOREAUDIT_* overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() error {
	c.Server.Addr = utils.SafeEnv("STOREAUDIT_ADDR", c.Server.Addr)
	c.Database.Driver = utils.SafeEnv("STOREAUDIT_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = utils.SafeEnv("STOREAUDIT_DB_DSN", c.Database.DSN)
	c.Database.MigrationsDir = utils.SafeEnv("STOREAUDIT_MIGRATIONS_DIR", c.Database.MigrationsDir)
	c.Auth.JWTSecret = utils.SafeEnv("STOREAUDIT_JWT_SECRET", c.Auth.JWTSecret)
	c.Notify.NATSURL = utils.SafeEnv("STOREAUDIT_NATS_URL", c.Notify.NATSURL)
	c.Notify.Subject = utils.SafeEnv("STOREAUDIT_NATS_SUBJECT", c.Notify.Subject)
	c.Log.Level = utils.SafeEnv("STOREAUDIT_LOG_LEVEL", c.Log.Level)
	c.Server.CORSOrigins = utils.EnvList("STOREAUDIT_CORS_ORIGINS", c.Server.CORSOrigins)
	c.Audit.RequiredPhotoTypes = utils.EnvList("STOREAUDIT_REQUIRED_PHOTOS", c.Audit.RequiredPhotoTypes)
	if v := utils.SafeEnv("STOREAUDIT_DEBOUNCE", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STOREAUDIT_DEBOUNCE: %w", err)
		}
		c.Audit.DebounceDelay = d
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds the process logger and installs it as the slog default.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
