package config

import (
	"fmt"
	"strings"
)

// ValidateConfig rejects configurations the node cannot run with. Defaults
// must already be applied.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if cfg.RPCToken != "" && cfg.RPCJWTSecret != "" {
		return fmt.Errorf("config: RPCToken and RPCJWTSecret are mutually exclusive")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("config: Logging.MaxSizeMB must be positive")
	}
	if cfg.Telemetry.Endpoint == "" && (cfg.Telemetry.Metrics || cfg.Telemetry.Traces) {
		return fmt.Errorf("config: Telemetry.Endpoint required when exporters are enabled")
	}
	return nil
}
