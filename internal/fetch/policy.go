package fetch

import "time"

// RetryPolicy decides how to react to a 429 response.
type RetryPolicy interface {
	// OnThrottle is called after the attempt-th consecutive 429 for one request.
	OnThrottle(attempt int, retryAfter time.Duration) ThrottleDecision
}

// ThrottleDecision is the policy's answer for one 429.
type ThrottleDecision struct {
	// Wait is how long to sleep before retrying.
	Wait time.Duration
	// GiveUp stops retrying and surfaces a QuotaError.
	GiveUp bool
	// Escalate reports the quota as exhausted to the rate limiter, pausing
	// every worker instead of only this one.
	Escalate bool
}

// ThrottlePolicy waits out Retry-After plus Margin. MaxRetries of zero retries
// forever; EscalateAfter of zero never escalates.
type ThrottlePolicy struct {
	Margin        time.Duration
	MaxRetries    int
	EscalateAfter int
	// Fallback is used when the response carries no usable Retry-After.
	Fallback time.Duration
}

// DefaultPolicy retries 429 indefinitely with a one second margin and
// escalates after three consecutive throttles.
func DefaultPolicy() ThrottlePolicy {
	return ThrottlePolicy{Margin: time.Second, EscalateAfter: 3, Fallback: time.Second}
}

func (p ThrottlePolicy) OnThrottle(attempt int, retryAfter time.Duration) ThrottleDecision {
	if retryAfter <= 0 {
		retryAfter = p.Fallback
	}
	return ThrottleDecision{
		Wait:     retryAfter + p.Margin,
		GiveUp:   p.MaxRetries > 0 && attempt > p.MaxRetries,
		Escalate: p.EscalateAfter > 0 && attempt == p.EscalateAfter,
	}
}
