package config

import (
	"os"
	"strconv"
	"strings"

	sanitize "github.com/mrz1836/go-sanitize"

	"github.com/halyard-sh/halyard/internal/chain"
)

// Environment variable names.
const (
	EnvHome       = "HALYARD_HOME"
	EnvLogLevel   = "HALYARD_LOG_LEVEL"
	EnvSessionTTL = "HALYARD_SESSION_TTL"
	EnvBinanceURL = "HALYARD_BINANCE_URL"
	EnvPassphrase = "HALYARD_PASSPHRASE" // #nosec G101 -- const name, not a credential
	EnvRPCPrefix  = "HALYARD_RPC_"
	EnvNoShutdown = "HALYARD_NO_IDLE_SHUTDOWN"
	EnvMemoryLock = "HALYARD_MEMORY_LOCK"
	EnvSlidingTTL = "HALYARD_SESSION_SLIDING"
)

// ApplyEnvironment applies environment variable overrides to the
// configuration. HALYARD_RPC_<CHAIN> overrides a network endpoint,
// e.g. HALYARD_RPC_BASE.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvSessionTTL); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			cfg.Security.SessionTTLMinutes = ttl
		}
	}
	if v := os.Getenv(EnvBinanceURL); v != "" {
		cfg.Prices.BinanceBaseURL = SanitizeURL(v)
	}
	if v := os.Getenv(EnvNoShutdown); v != "" && parseBool(v) {
		cfg.Security.IdleShutdownMinutes = 0
	}
	if v := os.Getenv(EnvMemoryLock); v != "" {
		cfg.Security.MemoryLock = parseBool(v)
	}
	if v := os.Getenv(EnvSlidingTTL); v != "" {
		cfg.Security.SessionSlidingTTL = parseBool(v)
	}

	for _, id := range chain.AllChains() {
		env := EnvRPCPrefix + strings.ToUpper(string(id))
		if v := os.Getenv(env); v != "" {
			n := cfg.Networks[string(id)]
			n.Enabled = true
			n.RPC = SanitizeURL(v)
			if cfg.Networks == nil {
				cfg.Networks = make(map[string]NetworkConfig)
			}
			cfg.Networks[string(id)] = n
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string, stripping whitespace and characters
// that survive copy-paste from chat windows and docs.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}
