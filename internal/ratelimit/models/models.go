package models

import (
	"time"

	dErrors "warden/pkg/domain-errors"
)

// Algorithm selects how request history is kept for a key.
type Algorithm string

const (
	// AlgorithmSlidingLog keeps every admitted timestamp inside the trailing window. Exact.
	AlgorithmSlidingLog Algorithm = "sliding_log"
	// AlgorithmTokenBucket refills limit tokens per window continuously.
	AlgorithmTokenBucket Algorithm = "token_bucket"
	// AlgorithmFixedWindow counts per aligned window. It admits up to 2x limit
	// across a window boundary and is only suitable for development or fallback.
	AlgorithmFixedWindow Algorithm = "fixed_window"
)

func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmSlidingLog, AlgorithmTokenBucket, AlgorithmFixedWindow:
		return true
	}
	return false
}

// Route names the logical resource a limit applies to.
type Route string

const (
	RouteDefault  Route = "default"
	RouteLogin    Route = "login"
	RouteRegister Route = "register"
	RouteMe       Route = "me"
	RouteLogout   Route = "logout"
	// RouteGlobal scopes the per-IP limit applied to every request.
	RouteGlobal Route = "global"
)

// Limit is the number of requests admitted per window.
type Limit struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// Validate rejects limits that cannot admit any request.
func (l Limit) Validate() error {
	if l.Requests < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "limit must be at least 1")
	}
	if l.Window <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "window must be positive")
	}
	return nil
}

// Reason explains a decision for logs, metrics and headers.
type Reason string

const (
	ReasonWithinLimit        Reason = "within_limit"
	ReasonLimitExceeded      Reason = "limit_exceeded"
	ReasonBackendUnavailable Reason = "backend_unavailable"
	ReasonFailOpen           Reason = "fail_open"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // only set when not allowed
	Reason     Reason        `json:"reason"`
	// Degraded is set when a fallback store answered because the primary was unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Allow builds an admitting decision.
func Allow(limit, remaining int, resetAt time.Time) *Decision {
	return &Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: max(remaining, 0),
		ResetAt:   resetAt,
		Reason:    ReasonWithinLimit,
	}
}

// Deny builds a rejecting decision. retryAfter is raised to the smallest positive
// duration so a denied caller is never told to retry immediately.
func Deny(limit int, resetAt time.Time, retryAfter time.Duration) *Decision {
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return &Decision{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Reason:     ReasonLimitExceeded,
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (d *Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// Err converts a denial into a retryable domain error. It returns nil when allowed.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.NewRetryable(dErrors.CodeRateLimited, "rate limit exceeded", d.RetryAfter)
}
