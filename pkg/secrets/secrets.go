package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	dErrors "warden/pkg/domain-errors"
)

// MinSigningKeyLength is the shortest HMAC signing key accepted outside development.
const MinSigningKeyLength = 32

// Generate creates a cryptographically secure random secret.
// Returns a base64-encoded string suitable for use as a signing key.
func Generate() (string, error) {
	buf := make([]byte, MinSigningKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CheckSigningKey rejects keys too short to be used with HS256.
func CheckSigningKey(key string) error {
	if len(key) < MinSigningKeyLength {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("signing key must be at least %d bytes", MinSigningKeyLength))
	}
	return nil
}
