package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/fetch"
	"tmdbsync/internal/ratelimit"
)

// Prober reads the authoritative remaining quota from a cheap TMDB resource.
// It talks to the transport directly: routing it through the limiter it
// feeds would deadlock.
type Prober struct {
	doer   fetch.Doer
	path   string
	target string
	clock  clock.Clock
}

var _ ratelimit.Prober = (*Prober)(nil)

// NewProber builds a prober for baseURL+path authenticated with apiKey.
func NewProber(doer fetch.Doer, baseURL, path, apiKey string, clk clock.Clock) *Prober {
	if clk == nil {
		clk = clock.System()
	}
	q := url.Values{}
	if apiKey != "" {
		q.Set("api_key", apiKey)
	}
	path = "/" + strings.TrimLeft(path, "/")
	target := strings.TrimRight(baseURL, "/") + path
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	return &Prober{doer: doer, path: path, target: target, clock: clk}
}

func (p *Prober) Probe(ctx context.Context) (ratelimit.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return ratelimit.ProbeResult{}, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.doer.Do(req)
	if err != nil {
		// url.Error embeds the request URL, api key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return ratelimit.ProbeResult{}, fmt.Errorf("quota probe: %w", err)
	}
	defer resp.Body.Close()

	result := ratelimit.ProbeResult{}
	if resp.StatusCode == http.StatusTooManyRequests {
		result.Throttled = true
		result.RetryAfter = fetch.ParseRetryAfter(resp.Header.Get(fetch.HeaderRetryAfter), p.clock.Now())
		return result, nil
	}
	// A rejected key or server error must reach the limiter's warning log
	// rather than read as "quota unknown".
	if resp.StatusCode != http.StatusOK {
		return ratelimit.ProbeResult{}, &fetch.UpstreamError{
			Upstream:   "tmdb",
			Op:         fetch.OpQuota,
			Path:       p.path,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get(fetch.HeaderRateLimitRemaining))); err == nil {
		result.Remaining = n
		result.Known = true
	}
	if reset, err := strconv.ParseInt(strings.TrimSpace(resp.Header.Get("X-RateLimit-Reset")), 10, 64); err == nil && reset > 0 {
		result.ResetAt = time.Unix(reset, 0)
	}
	return result, nil
}
