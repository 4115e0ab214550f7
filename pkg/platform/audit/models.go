package audit

import "time"

// Event is emitted for security-relevant actions. It is transport-agnostic so
// sinks can fan out without knowing the caller.
type Event struct {
	Timestamp time.Time
	Action    string
	// Subject is the account the event concerns, when known.
	Subject   string
	Reason    string
	RequestID string
	// IPPrefix is the anonymized client address.
	IPPrefix string
}

const (
	EventAccountRegistered = "account_registered"
	EventLoginSucceeded    = "login_succeeded"
	EventLoginFailed       = "login_failed"
	EventAccountLocked     = "account_locked"
	EventAccountUnlocked   = "account_unlocked"
	EventTokenRevoked      = "token_revoked"
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventRateLimitReset    = "rate_limit_reset"
)
