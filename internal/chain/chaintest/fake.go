// Package chaintest provides an in-memory Adapter for exercising the
// execution coordinator without a network.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/halyard-sh/halyard/internal/chain"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Fake is an in-memory chain.Adapter. Balances are seeded by tests;
// sends are recorded, not applied.
type Fake struct {
	Chain chain.ID

	// SimulateErr and SendErr force the corresponding call to fail.
	SimulateErr error
	SendErr     error

	mu       sync.Mutex
	balances map[string]*big.Int
	sent     []chain.SendRequest
	lastKey  []byte
}

// NewFake creates a fake adapter for the given network.
func NewFake(id chain.ID) *Fake {
	return &Fake{
		Chain:    id,
		balances: make(map[string]*big.Int),
	}
}

// SetBalance seeds a native balance.
func (f *Fake) SetBalance(address string, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = new(big.Int).Set(wei)
}

// Sent returns a copy of all broadcast requests.
func (f *Fake) Sent() []chain.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chain.SendRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

// LastKey returns the private key slice passed to the most recent
// Send, aliased rather than copied, so callers can assert it was
// zeroized after the adapter returned.
func (f *Fake) LastKey() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

func (f *Fake) ID() chain.ID { return f.Chain }

func (f *Fake) ValidateAddress(address string) error {
	if address == "" {
		return halerr.Wrap(halerr.ErrInvalidRequest, "empty address")
	}
	return nil
}

func (f *Fake) NativeBalance(_ context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *Fake) TokenBalance(_ context.Context, _, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *Fake) Simulate(_ context.Context, _ chain.SendRequest) error {
	return f.SimulateErr
}

func (f *Fake) Send(_ context.Context, req chain.SendRequest) (*chain.TxResult, error) {
	if f.SendErr != nil {
		return nil, f.SendErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = req.PrivateKey

	recorded := req
	recorded.PrivateKey = nil
	f.sent = append(f.sent, recorded)

	amount := "0"
	if req.Amount != nil {
		amount = req.Amount.String()
	}
	return &chain.TxResult{
		Hash:   fmt.Sprintf("0xfake%04d", len(f.sent)),
		From:   req.From,
		To:     req.To,
		Amount: amount,
		Token:  req.Token,
		Status: "pending",
	}, nil
}

var _ chain.Adapter = (*Fake)(nil)
