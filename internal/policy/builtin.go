package policy

// Built-in DeFi allowlist for known protocol routers, applied when
// contract allowlisting is on and the user supplied no explicit list.
// All addresses are stored lowercase.
const (
	oneinchRouter     = "0x1111111254eeb25477b68fb85ed929f73a960582"
	uniswapRouter     = "0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45"
	uniswapBaseRouter = "0x2626664c2603336e57b271c5c0b26f421741e481"

	// LayerZero EndpointV2 is deployed at the same address across many
	// EVM chains, so it is allowed regardless of chain name.
	layerzeroEndpointV2 = "0x1a44076050125825900e736c501f859c50fe728c"

	aaveV3PoolEthereum = "0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2"
	aaveV3PoolBase     = "0xa238dd80c259a72e81d7e4664a9801593f98d1c5"
	aaveV3PoolArbOpPol = "0x794a61358d6845594f94dc1db02a252b5b4814ad"

	wormholeBridgeEthereum  = "0x3ee18b2214aff97000d974cf647e7c347e8fa585"
	wormholeBridgeArbitrum  = "0x0b2402144bb366a632d14b83f244d2e0e21bd39c"
	wormholeBridgeOptimism  = "0x1d68124e65fafc907325e3edbf8c4d84499daa8b"
	wormholeBridgePolygon   = "0x5a58505a96d1dbf8df91cb21b54419fc36e93fde"
	wormholeBridgeBase      = "0x8d2de8d2f73f1dfe8b72d0d8e9fffbcf7aac8aef"
	wormholeBridgeBNB       = "0xb6f6d86a8f9879a9c87f643768d9efc38c1da6e7"
	wormholeBridgeAvalanche = "0x0e082f06ff657d94310cb8ce8b0d9a04541d8052"

	// Compound v3 Comet (USDC markets).
	compoundCometEthereum = "0xc3d688b66703497daa19211eedff47f25384cdc3"
	compoundCometBase     = "0xb125e6687d4313864e53df431d5425969c15eb2f"
	compoundCometArbitrum = "0x9c4ec768c28520b50860ea7a15bd7213a9ff58bf"
	compoundCometOptimism = "0x2e44e174f7d53f0212823acc11c01a11d58c5bcb"
	compoundCometPolygon  = "0xf25212e676d1f7f89cd72ffee66158f541246445"

	// Lido (Ethereum mainnet).
	lidoStETH           = "0xae7ab96520de3a18e5e111b5eaab095312d7fe84"
	lidoWithdrawalQueue = "0x889edc2edab5f40e902b864ad4d7ade8e412f9b1"

	// Testnets (Wormhole).
	wormholeBridgeSepolia         = "0xdb5492265f6038831e89f495670ff909ade94bd9"
	wormholeBridgeArbitrumSepolia = "0xc7a204bdbfe983fcd8d8e61d02b475d4073ff97e"
	wormholeBridgeOptimismSepolia = "0x99737ec4b815d816c49a385943baf0380e75c0ac"
	wormholeBridgeBaseSepolia     = "0x86f55a04690fde37c5c5f6d0ca379b2ed2f334f9"
	wormholeBridgePolygonAmoy     = "0xc7a204bdbfe983fcd8d8e61d02b475d4073ff97e"
	wormholeBridgeBNBTestnet      = "0x9dcf9d205c9de35334d646bee44b2d2859712a09"
	wormholeBridgeAvalancheFuji   = "0x61e44e506ca5659e6c0bba9b678586fa2d729756"
)

var builtinContracts = map[string][]string{
	"ethereum": {
		uniswapRouter, aaveV3PoolEthereum, compoundCometEthereum,
		wormholeBridgeEthereum, lidoStETH, lidoWithdrawalQueue,
	},
	"base": {
		uniswapBaseRouter, aaveV3PoolBase, compoundCometBase, wormholeBridgeBase,
	},
	"arbitrum": {
		uniswapRouter, aaveV3PoolArbOpPol, compoundCometArbitrum, wormholeBridgeArbitrum,
	},
	"optimism": {
		uniswapRouter, aaveV3PoolArbOpPol, compoundCometOptimism, wormholeBridgeOptimism,
	},
	"polygon": {
		uniswapRouter, aaveV3PoolArbOpPol, compoundCometPolygon, wormholeBridgePolygon,
	},
	"bnb":              {wormholeBridgeBNB},
	"avalanche":        {wormholeBridgeAvalanche},
	"sepolia":          {uniswapRouter, wormholeBridgeSepolia},
	"arbitrum-sepolia": {wormholeBridgeArbitrumSepolia},
	"optimism-sepolia": {wormholeBridgeOptimismSepolia},
	"base-sepolia":     {uniswapBaseRouter, wormholeBridgeBaseSepolia},
	"polygon-amoy":     {wormholeBridgePolygonAmoy},
	"bnb-testnet":      {wormholeBridgeBNBTestnet},
	"avalanche-fuji":   {wormholeBridgeAvalancheFuji},
}

// builtinAllowedContract reports whether contract is on the shipped
// allowlist for chain. Solana swaps are routed through Jupiter and
// validated at the provider level, so "jupiter" is the only entry there.
func builtinAllowedContract(chain, contract string) bool {
	if chain == "solana" {
		return equalFoldTrim(contract, "jupiter")
	}

	c, err := normalizeEVMAddress(contract)
	if err != nil {
		return false
	}
	if c == layerzeroEndpointV2 || c == oneinchRouter {
		// Shared deployments across EVM networks; allow regardless of
		// chain name. Writes still fail if the chain is unsupported.
		return true
	}
	for _, allowed := range builtinContracts[chain] {
		if c == allowed {
			return true
		}
	}
	return false
}
