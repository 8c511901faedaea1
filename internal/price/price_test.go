package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/chain"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

func TestBinanceSymbolUSD(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.String())
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"3141.59"}`))
	}))
	defer srv.Close()

	src, err := NewBinance(srv.URL)
	require.NoError(t, err)

	usd, err := src.SymbolUSD(context.Background(), "eth")
	require.NoError(t, err)
	assert.InDelta(t, 3141.59, usd, 1e-9)
	assert.Equal(t, "/api/v3/ticker/price?symbol=ETHUSDT", gotPath.Load())
}

func TestBinanceStablecoinsSkipNetwork(t *testing.T) {
	src, err := NewBinance("https://unreachable.invalid")
	require.NoError(t, err)

	for _, symbol := range []string{"USD", "usdt", "USDC", "dai"} {
		usd, err := src.SymbolUSD(context.Background(), symbol)
		require.NoError(t, err, symbol)
		assert.InDelta(t, 1.0, usd, 1e-9)
	}
}

func TestBinanceUpstreamErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	src, err := NewBinance(srv.URL)
	require.NoError(t, err)

	_, err = src.SymbolUSD(context.Background(), "ETH")
	require.ErrorIs(t, err, halerr.ErrPriceUnavailable)
}

func TestBinanceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"price":"2.5"}`))
	}))
	defer srv.Close()

	src, err := NewBinance(srv.URL)
	require.NoError(t, err)

	usd, err := src.SymbolUSD(context.Background(), "SOL")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, usd, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBinanceRejectsPlainHTTP(t *testing.T) {
	_, err := NewBinance("http://example.com")
	require.ErrorIs(t, err, halerr.ErrConfigInvalid)

	// Loopback is fine for test servers.
	_, err = NewBinance("http://127.0.0.1:8080")
	require.NoError(t, err)
	_, err = NewBinance("http://localhost/api")
	require.NoError(t, err)

	// Non-loopback hosts that merely start with a loopback-looking
	// prefix are still rejected.
	_, err = NewBinance("http://localhost.evil.example")
	require.ErrorIs(t, err, halerr.ErrConfigInvalid)
}

func TestNativeSymbolCandidates(t *testing.T) {
	assert.Equal(t, []string{"POL", "MATIC"}, nativeSymbolCandidates(chain.Polygon))
	assert.Equal(t, []string{"ETH"}, nativeSymbolCandidates(chain.Base))
	assert.Equal(t, []string{"SOL"}, nativeSymbolCandidates(chain.Solana))
	assert.Nil(t, nativeSymbolCandidates(chain.ID("dogecoin")))
}

type countingSource struct {
	calls atomic.Int32
	usd   float64
	err   error
}

func (c *countingSource) NativeUSD(context.Context, chain.ID) (float64, error) {
	c.calls.Add(1)
	return c.usd, c.err
}

func (c *countingSource) SymbolUSD(context.Context, string) (float64, error) {
	c.calls.Add(1)
	return c.usd, c.err
}

func TestCachedServesFreshQuotes(t *testing.T) {
	src := &countingSource{usd: 10}
	cached := NewCached(src, time.Minute)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		usd, err := cached.NativeUSD(context.Background(), chain.Base)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, usd, 1e-9)
	}
	assert.Equal(t, int32(1), src.calls.Load())

	// Past the TTL the source is consulted again.
	now = now.Add(2 * time.Minute)
	_, err := cached.NativeUSD(context.Background(), chain.Base)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	src := &countingSource{err: halerr.ErrPriceUnavailable}
	cached := NewCached(src, time.Minute)

	_, err := cached.SymbolUSD(context.Background(), "ETH")
	require.ErrorIs(t, err, halerr.ErrPriceUnavailable)
	_, err = cached.SymbolUSD(context.Background(), "ETH")
	require.ErrorIs(t, err, halerr.ErrPriceUnavailable)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCachedPrune(t *testing.T) {
	src := &countingSource{usd: 1}
	cached := NewCached(src, time.Minute)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	_, err := cached.SymbolUSD(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 0, cached.Prune())

	now = now.Add(time.Hour)
	assert.Equal(t, 1, cached.Prune())
}

func TestFixedSource(t *testing.T) {
	src := &Fixed{
		Native:  map[chain.ID]float64{chain.Base: 3000},
		Symbols: map[string]float64{"SOL": 150},
	}

	usd, err := src.NativeUSD(context.Background(), chain.Base)
	require.NoError(t, err)
	assert.InDelta(t, 3000.0, usd, 1e-9)

	_, err = src.NativeUSD(context.Background(), chain.Solana)
	require.ErrorIs(t, err, halerr.ErrPriceUnavailable)

	usd, err = src.SymbolUSD(context.Background(), "USDC")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, usd, 1e-9)
}
