// Package policy implements the risk policy document and the pure
// evaluator that maps a proposed operation's economic facts to an
// approval tier. The evaluator never touches key material and performs
// no I/O; persistence lives in Store.
package policy

// Policy is the full risk document for one scope (global or one wallet).
// Documents are replaced wholesale, never field-merged, so a per-wallet
// override always describes the complete effective policy for its wallet.
type Policy struct {
	// USD approval tiers. Values at or below AutoApproveUSD proceed
	// without confirmation; values above ConfirmUpToUSD still require
	// confirmation; values above HardBlockOverUSD are refused outright.
	AutoApproveUSD   float64 `yaml:"auto_approve_usd" json:"auto_approve_usd"`
	ConfirmUpToUSD   float64 `yaml:"confirm_up_to_usd" json:"confirm_up_to_usd"`
	HardBlockOverUSD float64 `yaml:"hard_block_over_usd" json:"hard_block_over_usd"`

	// Hard caps independent of tiering.
	MaxUSDPerTx  float64 `yaml:"max_usd_per_tx" json:"max_usd_per_tx"`
	MaxUSDPerDay float64 `yaml:"max_usd_per_day" json:"max_usd_per_day"`

	// Maximum allowed swap slippage in basis points.
	MaxSlippageBps uint32 `yaml:"max_slippage_bps" json:"max_slippage_bps"`

	// DenyUnknownUSDValue refuses any write operation whose USD value
	// could not be computed (pricing unavailable). Fail closed: this
	// prevents an unknown value from turning into an auto-approval.
	DenyUnknownUSDValue bool `yaml:"deny_unknown_usd_value" json:"deny_unknown_usd_value"`

	// RequireConfirmForRemoteTx forces confirmation for transactions
	// whose bytes were constructed by a remote service, independent of
	// USD tiering.
	RequireConfirmForRemoteTx bool `yaml:"require_user_confirm_for_remote_tx" json:"require_user_confirm_for_remote_tx"`

	// Operation toggles.
	EnableSend       bool `yaml:"enable_send" json:"enable_send"`
	EnableSwap       bool `yaml:"enable_swap" json:"enable_swap"`
	EnablePerps      bool `yaml:"enable_perps" json:"enable_perps"`
	EnableNFT        bool `yaml:"enable_nft" json:"enable_nft"`
	EnablePumpfun    bool `yaml:"enable_pumpfun" json:"enable_pumpfun"`
	EnableBridge     bool `yaml:"enable_bridge" json:"enable_bridge"`
	EnableLending    bool `yaml:"enable_lending" json:"enable_lending"`
	EnableStaking    bool `yaml:"enable_staking" json:"enable_staking"`
	EnableLiquidity  bool `yaml:"enable_liquidity" json:"enable_liquidity"`
	EnablePrediction bool `yaml:"enable_prediction" json:"enable_prediction"`

	// InternalTransfersExempt treats transfers between managed wallets
	// as outside tiered approval and USD caps. They cannot exfiltrate
	// funds to an external recipient, so the default is true; disabling
	// it subjects them to normal tiering and daily limits.
	InternalTransfersExempt bool `yaml:"internal_transfers_exempt" json:"internal_transfers_exempt"`

	// Recipient allowlisting for plain sends. With SendAllowAny false
	// and an empty list, all sends are blocked.
	SendAllowAny  bool     `yaml:"send_allow_any" json:"send_allow_any"`
	SendAllowlist []string `yaml:"send_allowlist" json:"send_allowlist"`

	// Contract allowlisting for DeFi interactions. With ContractAllowAny
	// false and an empty list, the built-in allowlist of known protocol
	// routers applies (recommended).
	ContractAllowAny  bool     `yaml:"contract_allow_any" json:"contract_allow_any"`
	ContractAllowlist []string `yaml:"contract_allowlist" json:"contract_allowlist"`

	// Perpetuals risk controls.
	MaxLeverage       uint32  `yaml:"max_leverage" json:"max_leverage"`
	MaxUSDPerPosition float64 `yaml:"max_usd_per_position" json:"max_usd_per_position"`

	// NFT risk controls.
	MaxUSDPerNFTTx float64 `yaml:"max_usd_per_nft_tx" json:"max_usd_per_nft_tx"`

	// pump.fun risk controls. Chain-native units (SOL), enforced in the
	// pump.fun handlers in addition to the USD caps above.
	PumpfunMaxSolPerBuy   float64 `yaml:"pumpfun_max_sol_per_buy" json:"pumpfun_max_sol_per_buy"`
	PumpfunMaxBuysPerHour uint32  `yaml:"pumpfun_max_buys_per_hour" json:"pumpfun_max_buys_per_hour"`

	// Per-surface USD caps.
	MaxUSDPerBridgeTx     float64 `yaml:"max_usd_per_bridge_tx" json:"max_usd_per_bridge_tx"`
	MaxUSDPerLendingTx    float64 `yaml:"max_usd_per_lending_tx" json:"max_usd_per_lending_tx"`
	MaxUSDPerStakeTx      float64 `yaml:"max_usd_per_stake_tx" json:"max_usd_per_stake_tx"`
	MaxUSDPerLiquidityTx  float64 `yaml:"max_usd_per_liquidity_tx" json:"max_usd_per_liquidity_tx"`
	MaxUSDPerPredictionTx float64 `yaml:"max_usd_per_prediction_tx" json:"max_usd_per_prediction_tx"`
}

// Default returns the shipped policy. The numbers deliberately start
// tight; loosening them is an explicit, user-driven act.
func Default() Policy {
	return Policy{
		AutoApproveUSD:   10,
		ConfirmUpToUSD:   1000,
		HardBlockOverUSD: 1000,

		MaxUSDPerTx:  100,
		MaxUSDPerDay: 500,

		MaxSlippageBps: 100, // 1.0%

		DenyUnknownUSDValue:       true,
		RequireConfirmForRemoteTx: true,

		EnableSend:       true,
		EnableSwap:       true,
		EnablePerps:      true,
		EnableNFT:        true,
		EnablePumpfun:    true,
		EnableBridge:     true,
		EnableLending:    true,
		EnableStaking:    true,
		EnableLiquidity:  true,
		EnablePrediction: true,

		InternalTransfersExempt: true,

		SendAllowAny:      false,
		SendAllowlist:     nil,
		ContractAllowAny:  false,
		ContractAllowlist: nil,

		MaxLeverage:       3,
		MaxUSDPerPosition: 100,
		MaxUSDPerNFTTx:    100,

		PumpfunMaxSolPerBuy:   0.1,
		PumpfunMaxBuysPerHour: 10,

		MaxUSDPerBridgeTx:     100,
		MaxUSDPerLendingTx:    200,
		MaxUSDPerStakeTx:      500,
		MaxUSDPerLiquidityTx:  100,
		MaxUSDPerPredictionTx: 100,
	}
}
