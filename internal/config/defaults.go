package config

// Default RPC endpoints. PublicNode (Allnodes) requires no API key
// and runs the same endpoint scheme across every chain it serves.
var defaultRPCs = map[string]string{
	"ethereum":  "https://ethereum-rpc.publicnode.com",
	"base":      "https://base-rpc.publicnode.com",
	"arbitrum":  "https://arbitrum-one-rpc.publicnode.com",
	"optimism":  "https://optimism-rpc.publicnode.com",
	"polygon":   "https://polygon-bor-rpc.publicnode.com",
	"bsc":       "https://bsc-rpc.publicnode.com",
	"avalanche": "https://avalanche-c-chain-rpc.publicnode.com",
	"solana":    "https://solana-rpc.publicnode.com",
}

// Defaults returns the default configuration.
func Defaults() *Config {
	networks := make(map[string]NetworkConfig, len(defaultRPCs))
	for name, rpc := range defaultRPCs {
		networks[name] = NetworkConfig{Enabled: true, RPC: rpc}
	}

	return &Config{
		Version:  1,
		Home:     "~/.halyard",
		Networks: networks,
		Prices: PricesConfig{
			BinanceBaseURL:  "https://api.binance.com",
			CacheTTLSeconds: 300,
		},
		Security: SecurityConfig{
			SessionTTLMinutes:   15,
			SessionSlidingTTL:   false,
			MemoryLock:          true,
			IdleShutdownMinutes: 30,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.halyard/halyard.log",
		},
	}
}
