// Package config provides configuration management for Halyard.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Config is the on-disk daemon configuration. The policy document and
// wallet index live in their own files under Home; this file holds
// everything else.
type Config struct {
	Version  int                      `yaml:"version"`
	Home     string                   `yaml:"home"`
	Networks map[string]NetworkConfig `yaml:"networks"`
	Prices   PricesConfig             `yaml:"prices"`
	Security SecurityConfig           `yaml:"security"`
	Logging  LoggingConfig            `yaml:"logging"`
}

// NetworkConfig defines per-network RPC settings.
type NetworkConfig struct {
	Enabled bool   `yaml:"enabled"`
	RPC     string `yaml:"rpc"`
}

// PricesConfig defines the USD quote source.
type PricesConfig struct {
	BinanceBaseURL  string `yaml:"binance_base_url"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// SecurityConfig defines session and memory handling settings. The KDF
// costs apply to newly created keystores only; existing records carry the
// parameters they were written with.
type SecurityConfig struct {
	SessionTTLMinutes   int    `yaml:"session_ttl_minutes"`
	SessionSlidingTTL   bool   `yaml:"session_sliding_ttl"`
	MemoryLock          bool   `yaml:"memory_lock"`
	IdleShutdownMinutes int    `yaml:"idle_shutdown_minutes"`
	KDFMemoryKiB        uint32 `yaml:"kdf_memory_kib"`
	KDFTime             uint32 `yaml:"kdf_time"`
	KDFParallelism      uint8  `yaml:"kdf_parallelism"`
}

// KDFParams returns the configured Argon2id costs, falling back to the
// library defaults for any zero field.
func (c *Config) KDFParams() vaultcrypto.KDFParams {
	p := vaultcrypto.DefaultKDFParams()
	if c.Security.KDFMemoryKiB > 0 {
		p.MemoryKiB = c.Security.KDFMemoryKiB
	}
	if c.Security.KDFTime > 0 {
		p.Time = c.Security.KDFTime
	}
	if c.Security.KDFParallelism > 0 {
		p.Parallelism = c.Security.KDFParallelism
	}
	return p
}

// LoggingConfig defines file logging settings. Level "off" disables
// logging entirely; request payloads are never logged at any level.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file, layering it over
// the defaults. A missing file is ErrConfigNotFound.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, halerr.Wrap(halerr.ErrConfigNotFound, "%s", path)
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, halerr.Wrap(halerr.ErrConfigInvalid, "parsing %s: %v", path, err)
	}
	return cfg, nil
}

// LoadOrDefaults reads the config file if present, otherwise returns
// defaults. Environment overrides are applied either way.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	switch {
	case errors.Is(err, halerr.ErrConfigNotFound):
		cfg = Defaults()
	case err != nil:
		return nil, err
	}
	ApplyEnvironment(cfg)
	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Path returns the config file path under a home directory.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// ExpandHome resolves a leading ~/ against the user home directory.
func ExpandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// RPCEndpoint returns the configured RPC endpoint for a network, or
// empty when the network is disabled or unknown.
func (c *Config) RPCEndpoint(id chain.ID) string {
	n, ok := c.Networks[string(id)]
	if !ok || !n.Enabled {
		return ""
	}
	return n.RPC
}

// EnabledEVMChains returns the enabled EVM networks in stable order.
func (c *Config) EnabledEVMChains() []chain.ID {
	var out []chain.ID
	for _, id := range chain.EVMChains() {
		if c.RPCEndpoint(id) != "" {
			out = append(out, id)
		}
	}
	return out
}
