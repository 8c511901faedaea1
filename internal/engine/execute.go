package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	"github.com/halyard-sh/halyard/internal/wallet"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Audit outcome values.
const (
	outcomeExecuted = "executed"
	outcomePending  = "pending_approval"
	outcomeBlocked  = "blocked"
	outcomeApproved = "approved"
	outcomeDeclined = "declined"
	outcomeFailed   = "failed"
)

// Execute evaluates one request and, depending on the tier, either
// broadcasts it, parks it for confirmation, or refuses it. Every
// evaluation is audited; history records only completed broadcasts.
func (c *Coordinator) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if err := c.validate(&req); err != nil {
		return nil, err
	}
	t, err := c.resolveTarget(&req)
	if err != nil {
		return nil, err
	}

	facts, err := c.buildFacts(ctx, &req, t.record.Name)
	if err != nil {
		return nil, err
	}
	dec := policy.Evaluate(c.policies.Effective(t.record.Name), facts)

	switch dec.Tier {
	case policy.TierHardBlock:
		c.audit(&req, t.record.Name, dec, outcomeBlocked, facts.USDValue, "")
		c.log.Debug("blocked %s for %s: %s", req.Kind, t.record.Name, dec.Reason)
		return &Outcome{Decision: dec}, halerr.Wrap(halerr.ErrPolicyViolation, "%s: %s", dec.Reason, dec.Detail)

	case policy.TierRequireConfirm:
		pending, perr := c.park(req, t, facts, dec)
		if perr != nil {
			return nil, perr
		}
		c.audit(&req, t.record.Name, dec, outcomePending, facts.USDValue, "")
		return &Outcome{Decision: dec, Approval: pending}, nil

	default:
		res, xerr := c.execute(ctx, &req, t, facts, dec)
		if xerr != nil {
			c.audit(&req, t.record.Name, dec, outcomeFailed, facts.USDValue, "")
			return &Outcome{Decision: dec}, xerr
		}
		c.audit(&req, t.record.Name, dec, outcomeExecuted, facts.USDValue, res.Hash)
		return &Outcome{Decision: dec, Result: res}, nil
	}
}

func (c *Coordinator) validate(req *Request) error {
	if req.Kind == "" {
		return halerr.Wrap(halerr.ErrInvalidRequest, "missing operation kind")
	}
	if !req.Chain.IsValid() {
		return halerr.Wrap(halerr.ErrInvalidRequest, "unknown chain %q", req.Chain)
	}
	if strings.TrimSpace(req.Amount) == "" {
		return halerr.Wrap(halerr.ErrInvalidRequest, "missing amount")
	}
	if _, err := chain.ParseDecimalAmount(req.Amount, req.decimals()); err != nil {
		return err
	}
	return nil
}

// buildFacts prices the request and loads the wallet's spend-to-date.
// A pricing failure yields a nil USDValue; the evaluator decides what
// an unknown value means, not this layer.
func (c *Coordinator) buildFacts(ctx context.Context, req *Request, walletName string) (policy.Facts, error) {
	f := policy.Facts{
		Kind:        req.Kind,
		Chain:       string(req.Chain),
		SlippageBps: req.SlippageBps,
		Leverage:    req.Leverage,
		Destination: req.To,
		Contract:    req.Contract,
		RemoteTx:    req.RemoteTx,
	}

	units, err := strconv.ParseFloat(strings.TrimSpace(req.Amount), 64)
	if err == nil {
		var usd float64
		var perr error
		if req.Token != "" || req.TokenSymbol != "" {
			usd, perr = c.prices.SymbolUSD(ctx, req.AssetSymbol())
		} else {
			usd, perr = c.prices.NativeUSD(ctx, req.Chain)
		}
		if perr == nil {
			v := units * usd
			f.USDValue = &v
		} else {
			c.log.Debug("pricing %s unavailable: %v", req.AssetSymbol(), perr)
		}
	}

	spend, err := c.ks.DailySpendUSD(walletName, c.ks.CurrentDayKey())
	if err != nil {
		return policy.Facts{}, err
	}
	f.DaySpendUSD = spend
	return f, nil
}

// execute holds the mutation slot across unlock, key derivation,
// simulation, and broadcast. Simulation failure aborts before any
// bytes reach the network, and neither failure path writes history.
func (c *Coordinator) execute(ctx context.Context, req *Request, t target, facts policy.Facts, dec policy.Decision) (*chain.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	adapter, err := c.adapter(req.Chain)
	if err != nil {
		return nil, err
	}
	from, err := t.address()
	if err != nil {
		return nil, err
	}
	amount, err := chain.ParseDecimalAmount(req.Amount, req.decimals())
	if err != nil {
		return nil, err
	}

	priv, err := c.signingKey(t)
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(priv)

	sreq := chain.SendRequest{
		From:       from,
		To:         req.To,
		Amount:     amount,
		Data:       req.Data,
		Token:      req.Token,
		PrivateKey: priv,
	}
	if err := adapter.Simulate(ctx, sreq); err != nil {
		c.log.Error("simulation failed for %s on %s: %v", req.Kind, req.Chain, err)
		return nil, err
	}

	res, err := adapter.Send(ctx, sreq)
	if err != nil {
		c.log.Error("broadcast failed for %s on %s: %v", req.Kind, req.Chain, err)
		return nil, err
	}

	entry := keystore.HistoryEntry{
		Type:        c.historyType(req, t.record.Name),
		Wallet:      t.record.Name,
		Chain:       string(req.Chain),
		Destination: req.To,
		Asset:       req.AssetSymbol(),
		Amount:      req.Amount,
		USDValue:    facts.USDValue,
		TxID:        res.Hash,
		Tier:        dec.Tier.String(),
	}
	if err := c.ks.AppendHistory(entry); err != nil {
		// The transaction is already on the wire; surface the record
		// failure without pretending the broadcast did not happen.
		c.log.Error("recording history for %s: %v", res.Hash, err)
	}
	c.log.Debug("broadcast %s for %s: %s", req.Kind, t.record.Name, res.Hash)
	return res, nil
}

// historyType maps the request kind to the history entry type. An
// internal transfer records as its strict variant when the policy
// subjects internal transfers to budgets, so the spend counts.
func (c *Coordinator) historyType(req *Request, walletName string) string {
	if req.Kind == policy.KindInternalTransfer && !c.policies.Effective(walletName).InternalTransfersExempt {
		return "internal_transfer_strict"
	}
	return string(req.Kind)
}

// signingKey reconstructs the account's private key. The caller owns
// the returned slice and must zeroize it.
func (c *Coordinator) signingKey(t target) ([]byte, error) {
	needs, err := c.ks.NeedsPassphrase(t.record.Name)
	if err != nil {
		return nil, err
	}
	var passKey []byte
	if needs {
		// The session owns the key slice; it is not zeroized here.
		key, ok := c.sess.Key()
		if !ok {
			return nil, halerr.Wrap(halerr.ErrPassphraseRequired, "session is locked")
		}
		passKey = key
	}

	ul, err := c.ks.UnlockWallet(t.record.Name, passKey)
	if err != nil {
		return nil, err
	}
	defer ul.Secret.Destroy()

	if ul.Record.ImportedKind == keystore.ImportedPrivateKey {
		priv := make([]byte, ul.Secret.Len())
		copy(priv, ul.Secret.Bytes())
		return priv, nil
	}
	return wallet.DeriveEVMPrivateKey(ul.Secret.Bytes(), t.account, 0)
}

func (c *Coordinator) audit(req *Request, walletName string, dec policy.Decision, outcome string, usd *float64, txID string) {
	entry := keystore.AuditEntry{
		Type:     string(req.Kind),
		Wallet:   walletName,
		Chain:    string(req.Chain),
		Tier:     dec.Tier.String(),
		Reason:   dec.Reason,
		Detail:   dec.Detail,
		Outcome:  outcome,
		USDValue: usd,
		TxID:     txID,
	}
	if err := c.ks.AppendAudit(entry); err != nil {
		c.log.Error("recording audit entry: %v", err)
	}
}
