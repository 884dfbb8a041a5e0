package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "0.0.0.0:8080" {
		t.Errorf("Address = %q, want 0.0.0.0:8080", cfg.Server.Address)
	}
	if cfg.Server.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", cfg.Server.Region)
	}
	if cfg.Store.DatabasePath != "secrets.db" {
		t.Errorf("DatabasePath = %q, want secrets.db", cfg.Store.DatabasePath)
	}
	if cfg.Server.ShutdownTimeout != 30 {
		t.Errorf("ShutdownTimeout = %d, want 30", cfg.Server.ShutdownTimeout)
	}
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loker.yaml")
	content := `
server:
  address: "127.0.0.1:9999"
  region: eu-west-1
auth:
  access_key_id: AKIATEST
  access_key_secret: sekrit
store:
  database_path: /tmp/custom.db
  encryption_key: passphrase
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:9999" {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
	if cfg.Server.Region != "eu-west-1" {
		t.Errorf("Region = %q", cfg.Server.Region)
	}
	if cfg.Auth.AccessKeyID != "AKIATEST" || cfg.Auth.AccessKeySecret != "sekrit" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loker.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \"127.0.0.1:9999\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("LOKER_SERVER_ADDRESS", "127.0.0.1:1234")
	t.Setenv("LOKER_ENCRYPTION_KEY", "env-passphrase")
	t.Setenv("LOKER_ACCESS_KEY_ID", "AKIAENV")
	t.Setenv("LOKER_ACCESS_KEY_SECRET", "env-secret")
	t.Setenv("LOKER_USE_HTTPS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:1234" {
		t.Errorf("Address = %q, env should win over file", cfg.Server.Address)
	}
	if cfg.Store.EncryptionKey != "env-passphrase" {
		t.Errorf("EncryptionKey = %q", cfg.Store.EncryptionKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestHTTPSDefaultAddress(t *testing.T) {
	t.Setenv("LOKER_USE_HTTPS", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "0.0.0.0:8443" {
		t.Errorf("Address = %q, want 0.0.0.0:8443 under TLS", cfg.Server.Address)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"complete", func(c *Config) {}, true},
		{"missing encryption key", func(c *Config) { c.Store.EncryptionKey = "" }, false},
		{"missing access key", func(c *Config) { c.Auth.AccessKeyID = "" }, false},
		{"missing secret", func(c *Config) { c.Auth.AccessKeySecret = "" }, false},
		{"https without certs", func(c *Config) { c.Server.UseHTTPS = true }, false},
		{"https with certs", func(c *Config) {
			c.Server.UseHTTPS = true
			c.Server.CertPath = "/tls/cert.pem"
			c.Server.KeyPath = "/tls/key.pem"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			applyDefaults(cfg)
			cfg.Store.EncryptionKey = "pass"
			cfg.Auth.AccessKeyID = "AKIA"
			cfg.Auth.AccessKeySecret = "sk"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Validate succeeded, want error")
			}
		})
	}
}

func TestMissingNamedFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("Load of a named missing file should fail")
	}
}
