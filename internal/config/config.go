package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-based service configuration. Runtime-tunable values
// live in the database settings table instead.
type Config struct {
	Listen   string    `yaml:"listen"`   // HTTP listen address, e.g. ":8318".
	Database Database  `yaml:"database"` // Storage connection.
	JWT      JWTConfig `yaml:"jwt"`      // Admin token signing.
	Log      LogConfig `yaml:"log"`      // Logging output.
}

// Database holds the storage DSN.
type Database struct {
	DSN string `yaml:"dsn"` // postgres:// URL or sqlite file path.
}

// JWTConfig holds token signing configuration.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`       // HS256 signing secret.
	TokenExpiry time.Duration `yaml:"token-expiry"` // Admin token lifetime.
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `yaml:"level"`        // logrus level name.
	File       string `yaml:"file"`         // Log file path; empty logs to stderr.
	MaxSizeMB  int    `yaml:"max-size-mb"`  // Rotate after this many megabytes.
	MaxBackups int    `yaml:"max-backups"`  // Rotated files to retain.
	MaxAgeDays int    `yaml:"max-age-days"` // Days to retain rotated files.
}

// Defaults applied when the file omits values.
const (
	defaultListen      = ":8318"
	defaultTokenExpiry = 12 * time.Hour
)

// Load reads and validates the YAML configuration file.
func Load(path string) (*Config, error) {
	path = ResolveConfigPath(path)
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = defaultListen
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("config: jwt.secret is required")
	}
	if cfg.JWT.TokenExpiry <= 0 {
		cfg.JWT.TokenExpiry = defaultTokenExpiry
	}
	return &cfg, nil
}

// ResolveConfigPath expands a possibly relative configuration path.
func ResolveConfigPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "config.yaml"
	}
	if abs, errAbs := filepath.Abs(path); errAbs == nil {
		return abs
	}
	return path
}
