package policy

import (
	"fmt"
	"math"
)

// Kind identifies a write operation for policy purposes.
type Kind string

const (
	KindSend Kind = "send"
	KindSwap Kind = "swap"

	KindPerpOpen   Kind = "perp_open"
	KindPerpClose  Kind = "perp_close"
	KindPerpModify Kind = "perp_modify"
	KindLimitOrder Kind = "limit_order"

	KindNFTBuy      Kind = "nft_buy"
	KindNFTSell     Kind = "nft_sell"
	KindNFTTransfer Kind = "nft_transfer"
	KindNFTBid      Kind = "nft_bid"

	KindPumpfunBuy  Kind = "pumpfun_buy"
	KindPumpfunSell Kind = "pumpfun_sell"

	KindBridge          Kind = "bridge"
	KindLend            Kind = "lend"
	KindWithdrawLending Kind = "withdraw_lending"
	KindBorrow          Kind = "borrow"
	KindRepayBorrow     Kind = "repay_borrow"

	KindStake   Kind = "stake"
	KindUnstake Kind = "unstake"

	KindProvideLiquidity Kind = "provide_liquidity"
	KindRemoveLiquidity  Kind = "remove_liquidity"

	KindPlacePrediction Kind = "place_prediction"
	KindClosePrediction Kind = "close_prediction"

	// KindInternalTransfer covers transfers between managed wallets.
	KindInternalTransfer Kind = "internal_transfer"
)

// AllKinds lists every write operation the evaluator understands.
var AllKinds = []Kind{
	KindSend, KindSwap,
	KindPerpOpen, KindPerpClose, KindPerpModify, KindLimitOrder,
	KindNFTBuy, KindNFTSell, KindNFTTransfer, KindNFTBid,
	KindPumpfunBuy, KindPumpfunSell,
	KindBridge, KindLend, KindWithdrawLending, KindBorrow, KindRepayBorrow,
	KindStake, KindUnstake,
	KindProvideLiquidity, KindRemoveLiquidity,
	KindPlacePrediction, KindClosePrediction,
	KindInternalTransfer,
}

// Facts are the economic facts of one proposed operation. USDValue is
// nil when pricing was unavailable; the evaluator treats that as
// unknown, never as zero.
type Facts struct {
	Kind        Kind
	Chain       string
	USDValue    *float64
	DaySpendUSD float64
	SlippageBps *uint32
	Leverage    *uint32
	Destination string
	Contract    string
	RemoteTx    bool
}

// Tier orders approval outcomes from loosest to strictest.
type Tier int

const (
	TierAutoApprove Tier = iota
	TierRequireConfirm
	TierHardBlock
)

func (t Tier) String() string {
	switch t {
	case TierAutoApprove:
		return "auto_approve"
	case TierRequireConfirm:
		return "require_confirm"
	case TierHardBlock:
		return "hard_block"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Decision is the evaluator's verdict. Reason is a stable snake_case
// code suitable for programmatic handling; Detail is human-readable.
type Decision struct {
	Tier   Tier
	Reason string
	Detail string
}

// Stable decision reason codes.
const (
	ReasonUSDValueUnknown       = "policy_usd_value_unknown"
	ReasonSendNotAllowlisted    = "policy_send_not_allowlisted"
	ReasonContractNotAllowed    = "policy_contract_not_allowlisted"
	ReasonSlippageExceeded      = "policy_slippage_exceeded"
	ReasonLeverageTooHigh       = "policy_leverage_too_high"
	ReasonPositionCapExceeded   = "policy_max_usd_per_position"
	ReasonUSDCapExceeded        = "policy_usd_cap_exceeded"
	ReasonHardBlockOver         = "policy_hard_block"
	ReasonInvalidUSDValue       = "invalid_usd_value"
	ReasonInvalidRequest        = "invalid_request"
	ReasonRemoteTransaction     = "remote_transaction"
	ReasonAboveAutoApprove      = "usd_above_auto_approve"
	ReasonUnknownValueConfirmed = "usd_value_unknown_confirm"
)

func autoApprove() Decision {
	return Decision{Tier: TierAutoApprove}
}

func requireConfirm(reason, detail string) Decision {
	return Decision{Tier: TierRequireConfirm, Reason: reason, Detail: detail}
}

func hardBlock(reason, detail string) Decision {
	return Decision{Tier: TierHardBlock, Reason: reason, Detail: detail}
}

// Evaluate maps one operation to an approval tier. Pure: no I/O, no
// key material, deterministic for fixed inputs. First matching rule
// wins; rules are ordered so that increasing USD value can only move
// the outcome toward a stricter tier.
func Evaluate(p Policy, f Facts) Decision {
	// Internal transfers stay inside the custody boundary and cannot
	// exfiltrate funds, so by default they bypass tiering and caps.
	if f.Kind == KindInternalTransfer && p.InternalTransfersExempt {
		return autoApprove()
	}

	if d := checkToggle(p, f.Kind); d != nil {
		return *d
	}

	forceConfirm := false
	if f.USDValue == nil {
		switch f.Kind {
		case KindNFTTransfer, KindNFTSell:
			// NFTs routinely have no quotable USD value; moving or
			// listing one is gated on explicit confirmation instead.
			forceConfirm = true
		default:
			if p.DenyUnknownUSDValue {
				return hardBlock(ReasonUSDValueUnknown,
					"unable to compute USD value (pricing unavailable); refusing to sign")
			}
			forceConfirm = true
		}
	}

	if d := checkKind(p, f); d != nil {
		return *d
	}

	if !forceConfirm {
		if d := checkGlobalUSDLimits(p, f); d != nil {
			return *d
		}
	}

	if forceConfirm {
		return requireConfirm(ReasonUnknownValueConfirmed,
			"USD value unknown; explicit confirmation required")
	}
	if f.RemoteTx && p.RequireConfirmForRemoteTx {
		return requireConfirm(ReasonRemoteTransaction,
			"transaction bytes were constructed remotely")
	}

	usd := *f.USDValue
	// Confirm ceiling is checked before the auto-approve floor so that
	// out-of-order thresholds resolve to the stricter tier.
	if usd > p.ConfirmUpToUSD {
		return requireConfirm(ReasonAboveAutoApprove,
			fmt.Sprintf("usd_value %.2f exceeds confirm_up_to_usd %.2f", usd, p.ConfirmUpToUSD))
	}
	if usd <= p.AutoApproveUSD {
		return autoApprove()
	}
	return requireConfirm(ReasonAboveAutoApprove,
		fmt.Sprintf("usd_value %.2f exceeds auto_approve_usd %.2f", usd, p.AutoApproveUSD))
}

func checkToggle(p Policy, k Kind) *Decision {
	disabled := func(reason, what string) *Decision {
		d := hardBlock(reason, what+" is disabled by policy")
		return &d
	}
	switch k {
	case KindSend:
		if !p.EnableSend {
			return disabled("policy_send_disabled", "send")
		}
	case KindSwap:
		if !p.EnableSwap {
			return disabled("policy_swap_disabled", "swap")
		}
	case KindPerpOpen, KindPerpClose, KindPerpModify, KindLimitOrder:
		if !p.EnablePerps {
			return disabled("policy_perps_disabled", "perpetuals")
		}
	case KindNFTBuy, KindNFTSell, KindNFTTransfer, KindNFTBid:
		if !p.EnableNFT {
			return disabled("policy_nft_disabled", "nft operations")
		}
	case KindPumpfunBuy, KindPumpfunSell:
		if !p.EnablePumpfun {
			return disabled("policy_pumpfun_disabled", "pump.fun operations")
		}
	case KindBridge:
		if !p.EnableBridge {
			return disabled("policy_bridge_disabled", "bridging")
		}
	case KindLend, KindWithdrawLending, KindBorrow, KindRepayBorrow:
		if !p.EnableLending {
			return disabled("policy_lending_disabled", "lending/borrowing")
		}
	case KindStake, KindUnstake:
		if !p.EnableStaking {
			return disabled("policy_staking_disabled", "staking")
		}
	case KindProvideLiquidity, KindRemoveLiquidity:
		if !p.EnableLiquidity {
			return disabled("policy_liquidity_disabled", "liquidity provision")
		}
	case KindPlacePrediction, KindClosePrediction:
		if !p.EnablePrediction {
			return disabled("policy_prediction_disabled", "prediction markets")
		}
	}
	return nil
}

// checkKind dispatches the per-operation checks: allowlists, slippage,
// leverage, and per-surface USD caps.
func checkKind(p Policy, f Facts) *Decision {
	switch f.Kind {
	case KindSend:
		return checkSend(p, f)
	case KindSwap:
		return checkSwap(p, f)
	case KindPerpOpen, KindPerpClose, KindPerpModify, KindLimitOrder:
		return checkPerps(p, f)
	case KindNFTBuy, KindNFTSell, KindNFTTransfer, KindNFTBid:
		return checkNFT(p, f)
	case KindBridge:
		return checkSurfaceCap(p, f, p.MaxUSDPerBridgeTx, "max_usd_per_bridge_tx",
			f.Kind == KindBridge)
	case KindLend, KindWithdrawLending, KindBorrow, KindRepayBorrow:
		return checkSurfaceCap(p, f, p.MaxUSDPerLendingTx, "max_usd_per_lending_tx",
			f.Kind == KindLend || f.Kind == KindBorrow)
	case KindStake, KindUnstake:
		return checkSurfaceCap(p, f, p.MaxUSDPerStakeTx, "max_usd_per_stake_tx",
			f.Kind == KindStake)
	case KindProvideLiquidity, KindRemoveLiquidity:
		return checkSurfaceCap(p, f, p.MaxUSDPerLiquidityTx, "max_usd_per_liquidity_tx",
			f.Kind == KindProvideLiquidity)
	case KindPlacePrediction, KindClosePrediction:
		return checkSurfaceCap(p, f, p.MaxUSDPerPredictionTx, "max_usd_per_prediction_tx",
			f.Kind == KindPlacePrediction)
	}
	return nil
}

func checkSend(p Policy, f Facts) *Decision {
	if p.SendAllowAny {
		return nil
	}
	if f.Destination == "" {
		d := hardBlock(ReasonInvalidRequest, "missing destination address")
		return &d
	}
	dest, ok := normalizeAddress(f.Chain, f.Destination)
	if ok {
		for _, a := range p.SendAllowlist {
			if na, aok := normalizeAddress(f.Chain, a); aok && na == dest {
				return nil
			}
		}
	}
	d := hardBlock(ReasonSendNotAllowlisted, "recipient is not allowlisted by policy")
	return &d
}

func checkSwap(p Policy, f Facts) *Decision {
	if f.SlippageBps != nil && *f.SlippageBps > p.MaxSlippageBps {
		d := hardBlock(ReasonSlippageExceeded, fmt.Sprintf(
			"slippage_bps %d exceeds max_slippage_bps %d", *f.SlippageBps, p.MaxSlippageBps))
		return &d
	}
	if f.Contract != "" {
		return ensureContractAllowlisted(p, f.Chain, f.Contract)
	}
	return nil
}

func checkPerps(p Policy, f Facts) *Decision {
	if f.Kind != KindPerpOpen && f.Kind != KindPerpModify && f.Kind != KindLimitOrder {
		return nil
	}
	if f.USDValue != nil && *f.USDValue > p.MaxUSDPerPosition {
		d := hardBlock(ReasonPositionCapExceeded, fmt.Sprintf(
			"usd_value %.2f exceeds max_usd_per_position %.2f", *f.USDValue, p.MaxUSDPerPosition))
		return &d
	}
	if f.Leverage != nil && *f.Leverage > p.MaxLeverage {
		d := hardBlock(ReasonLeverageTooHigh, fmt.Sprintf(
			"leverage %d exceeds max_leverage %d", *f.Leverage, p.MaxLeverage))
		return &d
	}
	return nil
}

func checkNFT(p Policy, f Facts) *Decision {
	buying := f.Kind == KindNFTBuy || f.Kind == KindNFTBid
	if buying && f.USDValue != nil && *f.USDValue > p.MaxUSDPerNFTTx {
		d := hardBlock(ReasonUSDCapExceeded, fmt.Sprintf(
			"usd_value %.2f exceeds max_usd_per_nft_tx %.2f", *f.USDValue, p.MaxUSDPerNFTTx))
		return &d
	}
	if f.Chain != "solana" && f.Kind != KindNFTTransfer {
		if f.Contract != "" {
			return ensureContractAllowlisted(p, f.Chain, f.Contract)
		}
		if !p.ContractAllowAny {
			d := hardBlock(ReasonInvalidRequest, "missing contract address")
			return &d
		}
	}
	return nil
}

// checkSurfaceCap validates the contract (EVM chains only) and, for
// operations that move value outward, the per-surface USD cap.
func checkSurfaceCap(p Policy, f Facts, limit float64, limitName string, applies bool) *Decision {
	if f.Chain != "solana" && f.Chain != "bitcoin" && f.Contract != "" {
		if d := ensureContractAllowlisted(p, f.Chain, f.Contract); d != nil {
			return d
		}
	}
	if applies && f.USDValue != nil && *f.USDValue > limit {
		d := hardBlock(ReasonUSDCapExceeded, fmt.Sprintf(
			"usd_value %.2f exceeds %s %.2f", *f.USDValue, limitName, limit))
		return &d
	}
	return nil
}

func ensureContractAllowlisted(p Policy, chain, contract string) *Decision {
	if p.ContractAllowAny {
		return nil
	}
	if len(p.ContractAllowlist) == 0 {
		// Empty list means built-in allowlist only.
		if !builtinAllowedContract(chain, contract) {
			d := hardBlock(ReasonContractNotAllowed,
				"contract is not allowlisted (built-in allowlist)")
			return &d
		}
		return nil
	}
	if norm, ok := normalizeAddress(chain, contract); ok {
		for _, a := range p.ContractAllowlist {
			if na, aok := normalizeAddress(chain, a); aok && na == norm {
				return nil
			}
		}
	}
	d := hardBlock(ReasonContractNotAllowed, "contract is not allowlisted by policy")
	return &d
}

// checkGlobalUSDLimits enforces the per-transaction cap, the hard-block
// ceiling, and the daily aggregate cap, in that order.
func checkGlobalUSDLimits(p Policy, f Facts) *Decision {
	usd := *f.USDValue
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
		d := hardBlock(ReasonInvalidUSDValue, "invalid computed USD value")
		return &d
	}
	if usd > p.MaxUSDPerTx {
		d := hardBlock(ReasonUSDCapExceeded, fmt.Sprintf(
			"usd_value %.2f exceeds max_usd_per_tx %.2f", usd, p.MaxUSDPerTx))
		return &d
	}
	if usd > p.HardBlockOverUSD {
		d := hardBlock(ReasonHardBlockOver, fmt.Sprintf(
			"usd_value %.2f exceeds hard_block_over_usd %.2f", usd, p.HardBlockOverUSD))
		return &d
	}
	if f.DaySpendUSD+usd > p.MaxUSDPerDay {
		d := hardBlock(ReasonUSDCapExceeded, fmt.Sprintf(
			"daily limit exceeded: used %.2f + this %.2f > %.2f",
			f.DaySpendUSD, usd, p.MaxUSDPerDay))
		return &d
	}
	return nil
}
