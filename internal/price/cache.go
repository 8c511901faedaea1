package price

import (
	"context"
	"sync"
	"time"

	"github.com/halyard-sh/halyard/internal/chain"
)

// DefaultQuoteTTL is how long a quote stays fresh. Policy tiers are
// coarse enough that five minutes of drift cannot flip a decision
// materially.
const DefaultQuoteTTL = 5 * time.Minute

type quote struct {
	usd       float64
	fetchedAt time.Time
}

// Cached wraps a Source with an in-memory TTL cache keyed by symbol.
// A failed refresh does not evict the previous entry, but an expired
// entry is never served.
type Cached struct {
	source Source
	ttl    time.Duration

	mu     sync.RWMutex
	quotes map[string]quote
	now    func() time.Time
}

// NewCached wraps source with the given TTL. A zero ttl uses
// DefaultQuoteTTL.
func NewCached(source Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &Cached{
		source: source,
		ttl:    ttl,
		quotes: make(map[string]quote),
		now:    time.Now,
	}
}

// NativeUSD quotes the gas token of a network through the cache.
func (c *Cached) NativeUSD(ctx context.Context, id chain.ID) (float64, error) {
	return c.lookup("native:"+string(id), func() (float64, error) {
		return c.source.NativeUSD(ctx, id)
	})
}

// SymbolUSD quotes a ticker symbol through the cache.
func (c *Cached) SymbolUSD(ctx context.Context, symbol string) (float64, error) {
	return c.lookup("symbol:"+symbol, func() (float64, error) {
		return c.source.SymbolUSD(ctx, symbol)
	})
}

func (c *Cached) lookup(key string, fetch func() (float64, error)) (float64, error) {
	c.mu.RLock()
	q, ok := c.quotes[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(q.fetchedAt) < c.ttl {
		return q.usd, nil
	}

	usd, err := fetch()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.quotes[key] = quote{usd: usd, fetchedAt: c.now()}
	c.mu.Unlock()
	return usd, nil
}

// Prune drops expired quotes and returns how many were removed.
func (c *Cached) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for key, q := range c.quotes {
		if q.fetchedAt.Before(cutoff) {
			delete(c.quotes, key)
			removed++
		}
	}
	return removed
}

var _ Source = (*Cached)(nil)
