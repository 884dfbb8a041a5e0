// Package config handles loading and parsing of Loker configuration.
//
// Configuration is layered: an optional YAML file provides the base, then
// LOKER_* environment variables override individual fields. This matches how
// the server is deployed in test harnesses, where everything is env-shaped.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for Loker.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Store         StoreConfig         `yaml:"store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Address is the listen address, e.g. "0.0.0.0:8080".
	Address string `yaml:"address"`
	// Region is the AWS region used when minting ARNs.
	Region string `yaml:"region"`
	// UseHTTPS enables TLS on the listener.
	UseHTTPS bool `yaml:"use_https"`
	// CertPath is the path to the TLS certificate (required with UseHTTPS).
	CertPath string `yaml:"cert_path"`
	// KeyPath is the path to the TLS private key (required with UseHTTPS).
	KeyPath string `yaml:"key_path"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds (default: 30).
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// AuthConfig holds the single accepted SigV4 credential.
type AuthConfig struct {
	// AccessKeyID is the access key ID clients must sign with.
	AccessKeyID string `yaml:"access_key_id"`
	// AccessKeySecret is the matching secret access key.
	AccessKeySecret string `yaml:"access_key_secret"`
}

// StoreConfig holds encrypted store settings.
type StoreConfig struct {
	// DatabasePath is the filesystem path for the SQLite database file.
	DatabasePath string `yaml:"database_path"`
	// EncryptionKey is the passphrase unlocking the store. Required.
	EncryptionKey string `yaml:"encryption_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// ObservabilityConfig holds settings for metrics and health check endpoints.
type ObservabilityConfig struct {
	// Metrics enables the /metrics Prometheus endpoint.
	Metrics bool `yaml:"metrics"`
	// HealthCheck enables the /health, /healthz and /readyz probes.
	HealthCheck bool `yaml:"health_check"`
}

// Load reads an optional YAML configuration file and applies environment
// overrides on top. An empty path skips the file; a named file that cannot
// be read is an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Region:          "us-east-1",
			ShutdownTimeout: 30,
		},
		Store: StoreConfig{
			DatabasePath: "secrets.db",
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyEnv overrides config fields from LOKER_* environment variables.
func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setStr(&cfg.Store.EncryptionKey, "LOKER_ENCRYPTION_KEY")
	setStr(&cfg.Store.DatabasePath, "LOKER_DATABASE_PATH")
	setStr(&cfg.Auth.AccessKeyID, "LOKER_ACCESS_KEY_ID")
	setStr(&cfg.Auth.AccessKeySecret, "LOKER_ACCESS_KEY_SECRET")
	setStr(&cfg.Server.Address, "LOKER_SERVER_ADDRESS")
	setStr(&cfg.Server.Region, "LOKER_REGION")
	setStr(&cfg.Server.CertPath, "LOKER_CERT_PATH")
	setStr(&cfg.Server.KeyPath, "LOKER_KEY_PATH")
	setStr(&cfg.Logging.Level, "LOKER_LOG_LEVEL")
	setStr(&cfg.Logging.Format, "LOKER_LOG_FORMAT")

	if v, ok := os.LookupEnv("LOKER_USE_HTTPS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.UseHTTPS = b
		}
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after file and env loading.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		if cfg.Server.UseHTTPS {
			cfg.Server.Address = "0.0.0.0:8443"
		} else {
			cfg.Server.Address = "0.0.0.0:8080"
		}
	}
	if cfg.Server.Region == "" {
		cfg.Server.Region = "us-east-1"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = "secrets.db"
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if c.Store.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required (LOKER_ENCRYPTION_KEY)")
	}
	if c.Auth.AccessKeyID == "" || c.Auth.AccessKeySecret == "" {
		return fmt.Errorf("access key id and secret are required (LOKER_ACCESS_KEY_ID, LOKER_ACCESS_KEY_SECRET)")
	}
	if c.Server.UseHTTPS && (c.Server.CertPath == "" || c.Server.KeyPath == "") {
		return fmt.Errorf("cert_path and key_path are required when use_https is set")
	}
	return nil
}
