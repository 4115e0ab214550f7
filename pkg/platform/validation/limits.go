package validation

import (
	"fmt"

	dErrors "warden/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (16 KB).
	// Auth requests are a handful of short strings.
	MaxBodySize = 16 * 1024
)

// String element length limits
const (
	// MaxAccountIDLength is the maximum length of an account identifier (email or username).
	MaxAccountIDLength = 255

	// MaxPasswordLength bounds the plaintext accepted at the edge. Hashers apply
	// their own, possibly smaller, maximum.
	MaxPasswordLength = 128

	// MinPasswordLength is the minimum length accepted on registration.
	MinPasswordLength = 8

	// MaxTokenLength is the maximum length of a bearer token.
	MaxTokenLength = 4096
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
