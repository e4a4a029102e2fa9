package fetch

import (
	"fmt"
	"time"

	"tmdbsync/internal/services"
)

// UpstreamError is a non-success, non-429 response.
type UpstreamError struct {
	Upstream   string
	Op         Op
	Path       string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s %s %s returned %d", e.Upstream, e.Op, e.Path, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *UpstreamError) Is(target error) bool { return target == services.ErrUpstream }

// ConnectionError is a transport-level failure. It is never retried here.
type ConnectionError struct {
	Upstream string
	Op       Op
	Path     string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s %s: connection failed: %v", e.Upstream, e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == services.ErrConnection }

// QuotaError is returned only when the retry policy gives up on 429 responses.
type QuotaError struct {
	Upstream   string
	Op         Op
	Path       string
	Attempts   int
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s %s %s: still throttled after %d attempts (retry after %v)",
		e.Upstream, e.Op, e.Path, e.Attempts, e.RetryAfter)
}

func (e *QuotaError) Is(target error) bool { return target == services.ErrQuotaExceeded }
