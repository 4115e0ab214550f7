package password

import (
	"golang.org/x/crypto/bcrypt"

	dErrors "warden/pkg/domain-errors"
)

const (
	DefaultBcryptCost = 12
	// BcryptMaxLength is the longest plaintext bcrypt consumes.
	BcryptMaxLength = 72
)

type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. Costs outside bcrypt's range fall back to the default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if err := checkPlaintext(plaintext, BcryptMaxLength); err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash password")
	}
	return string(digest), nil
}

// Verify compares in constant time inside bcrypt.
func (b *Bcrypt) Verify(plaintext, digest string) bool {
	if plaintext == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

func (b *Bcrypt) NeedsRehash(digest string) bool {
	if detect(digest) != AlgorithmBcrypt {
		return true
	}
	cost, err := bcrypt.Cost([]byte(digest))
	return err != nil || cost < b.cost
}
