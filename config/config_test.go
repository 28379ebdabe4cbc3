package config

import (
	"os"
	"path/filepath"
	"testing"

	"betpool/crypto"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected RPC address %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "betpool-local" {
		t.Fatalf("unexpected network name %q", cfg.NetworkName)
	}
	if cfg.Logging.MaxSizeMB != 100 {
		t.Fatalf("logging defaults not applied: %+v", cfg.Logging)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not persisted: %v", err)
	}
	if cfg.OddsSignerKeystorePath == "" {
		t.Fatal("keystore path not set")
	}
	if _, err := crypto.LoadFromKeystore(cfg.OddsSignerKeystorePath, ""); err != nil {
		t.Fatalf("generated keystore unreadable: %v", err)
	}
}

func TestLoadExistingConfigKeepsValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	doc := `
RPCAddress = ":9090"
DataDir = "` + filepath.Join(dir, "data") + `"
RPCToken = "local-token"
IndexerDSN = "events.db"

[Logging]
Environment = "production"
File = "betpool.log"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9090" {
		t.Fatalf("RPCAddress overwritten: %q", cfg.RPCAddress)
	}
	if cfg.RPCToken != "local-token" || cfg.IndexerDSN != "events.db" {
		t.Fatalf("fields lost: %+v", cfg)
	}
	if cfg.Logging.Environment != "production" || cfg.Logging.MaxBackups != 5 {
		t.Fatalf("logging section mishandled: %+v", cfg.Logging)
	}

	// The keystore path is generated and written back on first load.
	if cfg.OddsSignerKeystorePath == "" {
		t.Fatal("keystore path not backfilled")
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.OddsSignerKeystorePath != cfg.OddsSignerKeystorePath {
		t.Fatalf("keystore path unstable: %q vs %q", reloaded.OddsSignerKeystorePath, cfg.OddsSignerKeystorePath)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	if err := ValidateConfig(base()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc address", func(c *Config) { c.RPCAddress = " " }},
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"both auth modes", func(c *Config) { c.RPCToken = "a"; c.RPCJWTSecret = "b" }},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Metrics = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
