package price

import (
	"context"

	"github.com/halyard-sh/halyard/internal/chain"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Fixed is a Source backed by static quotes, for tests and offline
// operation. Symbols absent from the map are unavailable.
type Fixed struct {
	Native  map[chain.ID]float64
	Symbols map[string]float64
}

// NativeUSD returns the configured native quote.
func (f *Fixed) NativeUSD(_ context.Context, id chain.ID) (float64, error) {
	if usd, ok := f.Native[id]; ok {
		return usd, nil
	}
	return 0, halerr.Wrap(halerr.ErrPriceUnavailable, "no fixed quote for %s", id)
}

// SymbolUSD returns the configured symbol quote.
func (f *Fixed) SymbolUSD(_ context.Context, symbol string) (float64, error) {
	if stablecoins[symbol] {
		return 1.0, nil
	}
	if usd, ok := f.Symbols[symbol]; ok {
		return usd, nil
	}
	return 0, halerr.Wrap(halerr.ErrPriceUnavailable, "no fixed quote for %s", symbol)
}

var _ Source = (*Fixed)(nil)
