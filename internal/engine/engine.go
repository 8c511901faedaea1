// Package engine coordinates policy-gated execution: it prices a
// proposed operation, evaluates it against the effective policy,
// handles the confirmation hand-off, and only then reconstructs key
// material to sign and broadcast. Key bytes live on the stack of a
// single method and are zeroized before it returns.
package engine

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/halyard-sh/halyard/internal/chain"
	"github.com/halyard-sh/halyard/internal/config"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/policy"
	"github.com/halyard-sh/halyard/internal/price"
	"github.com/halyard-sh/halyard/internal/session"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Coordinator owns the evaluate, confirm, sign, broadcast pipeline.
// All mutating operations serialize through a single mutation slot so
// at most one unlock-sign-broadcast sequence is in flight at a time.
type Coordinator struct {
	ks       *keystore.Keystore
	policies *policy.Store
	sess     *session.Manager
	prices   price.Source
	adapters map[chain.ID]chain.Adapter
	log      *config.Logger

	// mu is the mutation slot: held across unlock, key derivation,
	// simulation, and broadcast.
	mu sync.Mutex

	// Approvals live until resolved; abandonment is the caller's
	// concern, human response time is unbounded.
	approvalMu sync.Mutex
	approvals  map[string]*PendingApproval

	now func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAdapter registers a chain adapter. The last adapter registered
// for a network wins.
func WithAdapter(a chain.Adapter) Option {
	return func(c *Coordinator) { c.adapters[a.ID()] = a }
}

// WithLogger sets the file logger.
func WithLogger(l *config.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New builds a Coordinator around an opened keystore, a policy store,
// the unlock session, and a price source.
func New(ks *keystore.Keystore, policies *policy.Store, sess *session.Manager, prices price.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		ks:        ks,
		policies:  policies,
		sess:      sess,
		prices:    prices,
		adapters:  make(map[chain.ID]chain.Adapter),
		log:       config.NullLogger(),
		approvals: make(map[string]*PendingApproval),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is one proposed write operation from an agent. Wallet may be
// empty, meaning the active wallet and its active account; a named
// wallet uses Account for derivation.
type Request struct {
	Kind    policy.Kind `json:"kind"`
	Wallet  string      `json:"wallet,omitempty"`
	Account uint32      `json:"account,omitempty"`
	Chain   chain.ID    `json:"chain"`

	// To is the recipient for transfers; Contract is the protocol
	// contract for DeFi interactions.
	To       string `json:"to,omitempty"`
	Contract string `json:"contract,omitempty"`

	// Amount is a decimal string in display units of the asset being
	// spent. Token is the ERC-20 contract address, empty for the native
	// asset; TokenSymbol names the asset for pricing and history.
	Amount      string `json:"amount"`
	Token       string `json:"token,omitempty"`
	TokenSymbol string `json:"token_symbol,omitempty"`

	// TokenDecimals is the token's decimal places, used when Token is
	// set. Zero means 18.
	TokenDecimals int `json:"token_decimals,omitempty"`

	SlippageBps *uint32 `json:"slippage_bps,omitempty"`
	Leverage    *uint32 `json:"leverage,omitempty"`

	// RemoteTx marks transaction bytes constructed by a remote service.
	RemoteTx bool `json:"remote_tx,omitempty"`

	// Data is optional pre-built calldata for contract interactions.
	Data []byte `json:"data,omitempty"`
}

// Outcome reports how a request resolved. Exactly one of Approval and
// Result is set on success paths: Approval when the request is waiting
// for confirmation, Result after a broadcast.
type Outcome struct {
	Decision policy.Decision
	Approval *PendingApproval
	Result   *chain.TxResult
}

// target is a resolved wallet plus account.
type target struct {
	record  keystore.WalletRecord
	account uint32
}

func (c *Coordinator) resolveTarget(req *Request) (target, error) {
	if req.Wallet == "" {
		rec, account, err := c.ks.ActiveWallet()
		if err != nil {
			return target{}, err
		}
		return target{record: rec, account: account}, nil
	}
	rec, err := c.ks.GetWallet(req.Wallet)
	if err != nil {
		return target{}, err
	}
	if req.Account >= rec.Accounts {
		return target{}, halerr.Wrap(halerr.ErrAccountOutOfRange,
			"wallet %q has %d accounts", rec.Name, rec.Accounts)
	}
	return target{record: rec, account: req.Account}, nil
}

func (t target) address() (string, error) {
	if int(t.account) < len(t.record.EVMAddresses) {
		return t.record.EVMAddresses[t.account], nil
	}
	return "", halerr.Wrap(halerr.ErrCorruptKeystore,
		"wallet %q has no recorded address for account %d", t.record.Name, t.account)
}

// Balance reads a native or token balance. Reads bypass policy and the
// mutation slot; no key material is touched.
func (c *Coordinator) Balance(ctx context.Context, walletName string, account uint32, id chain.ID, token string) (*big.Int, string, error) {
	t, err := c.resolveTarget(&Request{Wallet: walletName, Account: account, Chain: id})
	if err != nil {
		return nil, "", err
	}
	addr, err := t.address()
	if err != nil {
		return nil, "", err
	}
	adapter, err := c.adapter(id)
	if err != nil {
		return nil, "", err
	}
	var bal *big.Int
	if token == "" {
		bal, err = adapter.NativeBalance(ctx, addr)
	} else {
		bal, err = adapter.TokenBalance(ctx, token, addr)
	}
	if err != nil {
		return nil, "", err
	}
	return bal, addr, nil
}

func (c *Coordinator) adapter(id chain.ID) (chain.Adapter, error) {
	if a, ok := c.adapters[id]; ok {
		return a, nil
	}
	return nil, halerr.Wrap(halerr.ErrInvalidRequest, "no adapter configured for chain %q", id)
}

// AssetSymbol is what history records as the spent asset.
func (req *Request) AssetSymbol() string {
	if req.TokenSymbol != "" {
		return strings.ToUpper(strings.TrimSpace(req.TokenSymbol))
	}
	return req.Chain.NativeSymbol()
}

func (req *Request) decimals() int {
	if req.Token != "" {
		if req.TokenDecimals > 0 {
			return req.TokenDecimals
		}
		return 18
	}
	return req.Chain.NativeDecimals()
}
