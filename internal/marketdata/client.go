package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPProvider fetches pre-computed snapshots from the upstream market-data
// service. Requests are rate limited client-side so background scans cannot
// exhaust the upstream quota.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// HTTPConfig configures the provider.
type HTTPConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration // per-request, default 10s
	RequestsPerSec float64       // rate limit, default 5
	BurstSize      int           // limiter burst, default 5
}

// NewHTTPProvider creates an HTTP snapshot provider.
func NewHTTPProvider(cfg HTTPConfig, log zerolog.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 5
	}
	return &HTTPProvider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.BurstSize),
		log:        log.With().Str("component", "marketdata").Logger(),
	}
}

// GetSnapshot fetches one symbol's snapshot, blocking on the rate limiter and
// honoring the context deadline.
func (p *HTTPProvider) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	endpoint := fmt.Sprintf("%s/v1/snapshot?%s", p.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("snapshot for %s: status %d: %s", symbol, resp.StatusCode, string(body))
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", symbol, err)
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now()
	}
	return &snap, nil
}

// GetQualityScore fetches the optional 0-100 fundamental-quality score. Any
// failure reads as "unavailable"; quality data is never load-bearing.
func (p *HTTPProvider) GetQualityScore(ctx context.Context, symbol string) (float64, bool) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, false
	}

	endpoint := fmt.Sprintf("%s/v1/quality?symbol=%s", p.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Str("symbol", symbol).Msg("quality score unavailable")
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var payload struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false
	}
	if payload.Score < 0 || payload.Score > 100 {
		return 0, false
	}
	return payload.Score, true
}
