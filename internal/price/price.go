// Package price resolves USD values for policy evaluation. Prices are
// advisory inputs to risk tiers, never to accounting, so a stale quote
// within the cache TTL is acceptable and an unavailable quote must
// surface as unknown rather than zero.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/halyard-sh/halyard/internal/chain"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Source resolves spot prices in USD. Implementations return
// ErrPriceUnavailable (possibly wrapped) when they cannot quote;
// callers treat that as unknown value, not as zero.
type Source interface {
	// NativeUSD quotes the gas token of a network.
	NativeUSD(ctx context.Context, id chain.ID) (float64, error)

	// SymbolUSD quotes an arbitrary ticker symbol.
	SymbolUSD(ctx context.Context, symbol string) (float64, error)
}

// stablecoins quote at exactly 1 USD without a network call.
var stablecoins = map[string]bool{
	"USD":  true,
	"USDT": true,
	"USDC": true,
	"DAI":  true,
}

// Binance quotes ticker symbols against USDT on the Binance public
// API. No API key is required for the ticker endpoint.
type Binance struct {
	baseURL string
	client  *http.Client
	limiter *chain.RateLimiter
}

// NewBinance creates a Binance price source. baseURL defaults to the
// public API when empty.
func NewBinance(baseURL string) (*Binance, error) {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if err := checkTransportSecurity(baseURL); err != nil {
		return nil, err
	}
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: chain.DefaultRateLimiter(),
	}, nil
}

// checkTransportSecurity requires https for price endpoints. Loopback
// http is allowed for local test servers, and HALYARD_ALLOW_INSECURE_HTTP
// overrides the check entirely.
func checkTransportSecurity(baseURL string) error {
	if strings.HasPrefix(baseURL, "https://") || isLoopbackHTTP(baseURL) || allowInsecureHTTP() {
		return nil
	}
	return halerr.Wrap(halerr.ErrConfigInvalid,
		"price endpoint %q must use https or loopback; set HALYARD_ALLOW_INSECURE_HTTP=1 to override", baseURL)
}

func allowInsecureHTTP() bool {
	switch os.Getenv("HALYARD_ALLOW_INSECURE_HTTP") {
	case "1", "true", "TRUE", "yes", "YES", "on", "ON":
		return true
	}
	return false
}

func isLoopbackHTTP(url string) bool {
	for _, prefix := range []string{"http://127.0.0.1", "http://localhost", "http://[::1]"} {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(url), prefix); ok {
			if rest == "" || rest[0] == ':' || rest[0] == '/' {
				return true
			}
		}
	}
	return false
}

// nativeSymbolCandidates maps a network to the ticker symbols tried in
// order. Polygon keeps MATIC as a fallback while exchanges finish the
// POL migration.
func nativeSymbolCandidates(id chain.ID) []string {
	if id == chain.Polygon {
		return []string{"POL", "MATIC"}
	}
	if s := id.NativeSymbol(); s != "" {
		return []string{s}
	}
	return nil
}

// NativeUSD quotes the gas token of a network.
func (b *Binance) NativeUSD(ctx context.Context, id chain.ID) (float64, error) {
	candidates := nativeSymbolCandidates(id)
	if len(candidates) == 0 {
		return 0, halerr.Wrap(halerr.ErrPriceUnavailable, "no native token symbol for %s", id)
	}

	var lastErr error
	for _, symbol := range candidates {
		usd, err := b.SymbolUSD(ctx, symbol)
		if err == nil {
			return usd, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

type binanceTicker struct {
	Price string `json:"price"`
}

// SymbolUSD quotes a ticker symbol via its USDT pair.
func (b *Binance) SymbolUSD(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if stablecoins[symbol] {
		return 1.0, nil
	}

	if err := b.limiter.Wait(ctx, b.baseURL); err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%sUSDT", b.baseURL, symbol)
	usd, err := chain.Retry(ctx, func() (float64, error) {
		return b.fetch(ctx, url)
	})
	if err != nil {
		return 0, halerr.Wrap(halerr.ErrPriceUnavailable, "quoting %s: %v", symbol, err)
	}
	return usd, nil
}

func (b *Binance) fetch(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, chain.WrapRetryable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := chain.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}
		return 0, chain.ErrRateLimited
	case resp.StatusCode >= 500:
		return 0, chain.WrapRetryable(fmt.Errorf("upstream status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var ticker binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("decoding ticker: %w", err)
	}
	usd, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %w", ticker.Price, err)
	}
	return usd, nil
}

var _ Source = (*Binance)(nil)
