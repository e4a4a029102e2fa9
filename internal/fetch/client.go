// Package fetch executes upstream API requests with quota gating, bounded
// concurrency, and 429 handling.
//
// Every network attempt first takes one unit from the Gate (the upstream's
// rate limiter) and then a slot from a weighted semaphore, so request rate and
// request concurrency are limited independently. A 429 is treated as a normal
// condition: the client sleeps out the provider's Retry-After and tries again.
// Transport failures and other non-2xx statuses are returned immediately as
// typed errors that classify under the services failure markers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/logging"
)

// Doer is the HTTP transport the client wraps.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Gate is the rate limiter view the client needs. *ratelimit.Limiter
// satisfies it.
type Gate interface {
	Acquire(ctx context.Context) error
	ReportExhausted(retryAfter time.Duration)
	Observe(remaining int)
}

const (
	HeaderRetryAfter = "Retry-After"
	// HeaderRateLimitRemaining is the provider's authoritative quota header.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	maxBodyBytes             = 16 << 20
)

// Options configures a Client.
type Options struct {
	// Name labels the upstream in errors and logs.
	Name    string
	BaseURL string
	// Auth holds credentials added to every query (e.g. api_key).
	Auth        url.Values
	Header      http.Header
	MaxInFlight int64
	Timeout     time.Duration
	Policy      RetryPolicy
	// Gate may be nil for upstreams without a quota contract.
	Gate   Gate
	Doer   Doer
	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is the retrying fetch client for one upstream.
type Client struct {
	name    string
	baseURL string
	auth    url.Values
	header  http.Header
	policy  RetryPolicy
	gate    Gate
	doer    Doer
	clock   clock.Clock
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// New constructs a client. Zero options fall back to a 40-request semaphore,
// a 10 second per-attempt timeout, and DefaultPolicy.
func New(opts Options) *Client {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 40
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Doer == nil {
		opts.Doer = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = "upstream"
	}
	return &Client{
		name:    opts.Name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		auth:    cloneValues(opts.Auth),
		header:  opts.Header.Clone(),
		policy:  opts.Policy,
		gate:    opts.Gate,
		doer:    opts.Doer,
		clock:   opts.Clock,
		sem:     semaphore.NewWeighted(opts.MaxInFlight),
		logger:  logging.NewComponentLogger(opts.Logger, "fetch"),
	}
}

// Execute performs req, retrying on 429 as the policy allows.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, c.logger)

	throttles := 0
	for {
		if c.gate != nil {
			if err := c.gate.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		started := c.clock.Now()
		res, err := c.attempt(ctx, req, target)
		if err != nil {
			return nil, err
		}

		switch {
		case res.StatusCode == http.StatusTooManyRequests:
			throttles++
			retryAfter := ParseRetryAfter(res.Header.Get(HeaderRetryAfter), c.clock.Now())
			decision := c.policy.OnThrottle(throttles, retryAfter)
			if decision.Escalate && c.gate != nil {
				c.gate.ReportExhausted(retryAfter)
			}
			if decision.GiveUp {
				return nil, &QuotaError{Upstream: c.name, Op: req.Op(), Path: req.Path(), Attempts: throttles, RetryAfter: retryAfter}
			}
			logger.Info("upstream throttled; waiting",
				logging.String("upstream", c.name),
				logging.String("request", req.String()),
				logging.Duration("retry_after", retryAfter),
				logging.Duration("wait", decision.Wait),
				logging.Int("attempt", throttles),
				logging.String(logging.FieldEventType, "upstream_throttled"),
			)
			if err := c.clock.Sleep(ctx, decision.Wait); err != nil {
				return nil, err
			}
			continue

		case res.StatusCode >= 200 && res.StatusCode < 300:
			if c.gate != nil {
				if remaining, ok := parseInt(res.Header.Get(HeaderRateLimitRemaining)); ok {
					c.gate.Observe(remaining)
				}
			}
			logger.Debug("upstream request complete",
				logging.String("upstream", c.name),
				logging.String("request", req.String()),
				logging.Int("status", res.StatusCode),
				logging.Duration("latency", c.clock.Now().Sub(started)),
			)
			return res, nil

		default:
			return nil, &UpstreamError{
				Upstream:   c.name,
				Op:         req.Op(),
				Path:       req.Path(),
				StatusCode: res.StatusCode,
				Message:    statusMessage(res.Body),
			}
		}
	}
}

// attempt performs one HTTP round trip while holding a semaphore slot.
func (c *Client) attempt(ctx context.Context, req Request, target string) (*Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.name, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, vals := range c.header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConnectionError{Upstream: c.name, Op: req.Op(), Path: req.Path(), Err: c.redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConnectionError{Upstream: c.name, Op: req.Op(), Path: req.Path(), Err: fmt.Errorf("read body: %w", err)}
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) buildURL(req Request) (string, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path(), "/")
	if c.baseURL == "" {
		endpoint = req.Path()
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%s: invalid url %q: %w", c.name, endpoint, err)
	}
	q := req.Query()
	for k, vals := range c.auth {
		q[k] = append([]string(nil), vals...)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips credential values from transport errors, which embed the
// request URL.
func (c *Client) redact(err error) error {
	msg := err.Error()
	replaced := msg
	for _, vals := range c.auth {
		for _, v := range vals {
			if v == "" {
				continue
			}
			replaced = strings.ReplaceAll(replaced, url.QueryEscape(v), "REDACTED")
			replaced = strings.ReplaceAll(replaced, v, "REDACTED")
		}
	}
	if replaced == msg {
		return err
	}
	return &redactedError{msg: replaced, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

// ParseRetryAfter reads a Retry-After value given as delta-seconds or an HTTP
// date. Missing or unusable values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func parseInt(value string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return n, true
}

func statusMessage(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// IsRetryableQuota reports whether err is a quota error the caller may wait out.
func IsRetryableQuota(err error) (time.Duration, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.RetryAfter, true
	}
	return 0, false
}
