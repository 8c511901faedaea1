package engine

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// PendingApproval is a request parked for user confirmation. The token
// is the only handle: redeeming it with Approve executes the original
// request unchanged, Decline discards it.
type PendingApproval struct {
	Token    string          `json:"token"`
	Request  Request         `json:"request"`
	Facts    policy.Facts    `json:"facts"`
	Decision policy.Decision `json:"-"`

	// Wallet is the resolved wallet name, filled in even when the
	// request left it empty and the active wallet was used.
	Wallet string `json:"wallet"`

	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	target target
}

func (c *Coordinator) park(req Request, t target, facts policy.Facts, dec policy.Decision) (*PendingApproval, error) {
	raw, err := vaultcrypto.RandomBytes(16)
	if err != nil {
		return nil, halerr.Wrap(err, "generating approval token")
	}
	pending := &PendingApproval{
		Token:     hex.EncodeToString(raw),
		Request:   req,
		Facts:     facts,
		Decision:  dec,
		Wallet:    t.record.Name,
		Reason:    dec.Reason,
		Detail:    dec.Detail,
		CreatedAt: c.now(),
		target:    t,
	}

	c.approvalMu.Lock()
	defer c.approvalMu.Unlock()
	c.approvals[pending.Token] = pending
	return pending, nil
}

// take removes and returns a pending approval.
func (c *Coordinator) take(token string) (*PendingApproval, error) {
	c.approvalMu.Lock()
	defer c.approvalMu.Unlock()

	pending, ok := c.approvals[token]
	if !ok {
		return nil, halerr.Wrap(halerr.ErrApprovalNotFound, "token %q", token)
	}
	delete(c.approvals, token)
	return pending, nil
}

// Pending lists parked approvals.
func (c *Coordinator) Pending() []*PendingApproval {
	c.approvalMu.Lock()
	defer c.approvalMu.Unlock()

	out := make([]*PendingApproval, 0, len(c.approvals))
	for _, pending := range c.approvals {
		out = append(out, pending)
	}
	return out
}

// Approve redeems a confirmation token and executes the parked
// request. The token is consumed even when execution fails; the caller
// must submit a fresh request to retry.
func (c *Coordinator) Approve(ctx context.Context, token string) (*chain.TxResult, error) {
	pending, err := c.take(token)
	if err != nil {
		return nil, err
	}
	req := pending.Request
	name := pending.target.record.Name

	res, err := c.execute(ctx, &req, pending.target, pending.Facts, pending.Decision)
	if err != nil {
		c.audit(&req, name, pending.Decision, outcomeFailed, pending.Facts.USDValue, "")
		return nil, err
	}
	c.audit(&req, name, pending.Decision, outcomeApproved, pending.Facts.USDValue, res.Hash)
	return res, nil
}

// Decline discards a parked request. Declines are audited but never
// enter history.
func (c *Coordinator) Decline(token string) error {
	pending, err := c.take(token)
	if err != nil {
		return err
	}
	req := pending.Request
	c.audit(&req, pending.target.record.Name, pending.Decision, outcomeDeclined, pending.Facts.USDValue, "")
	c.log.Debug("declined %s for %s", req.Kind, pending.target.record.Name)
	return nil
}
