package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"betpool/crypto"
)

// Config is the node's on-disk configuration.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`

	// RPCToken is the static bearer token for mutating RPC methods.
	// Mutually exclusive with RPCJWTSecret.
	RPCToken     string `toml:"RPCToken"`
	RPCJWTSecret string `toml:"RPCJWTSecret"`

	// OddsSignerKeystorePath holds the key the node uses to attest odds
	// quotes. Generated on first boot when absent.
	OddsSignerKeystorePath string `toml:"OddsSignerKeystorePath"`

	// IndexerDSN enables the event indexer when set. A postgres:// URL
	// selects Postgres; any other value is treated as a sqlite path.
	IndexerDSN string `toml:"IndexerDSN"`

	NetworkName string    `toml:"NetworkName"`
	Logging     Logging   `toml:"Logging"`
	Telemetry   Telemetry `toml:"Telemetry"`
}

// Load reads the configuration at path, creating a default file (and an odds
// signer keystore next to it) on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./betpool-data"
	}
	if cfg.NetworkName == "" {
		cfg.NetworkName = "betpool-local"
	}
	cfg.Logging.applyDefaults()
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OddsSignerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OddsSignerKeystorePath != keystorePath {
		cfg.OddsSignerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.OddsSignerKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "odds-signer.keystore")
}
