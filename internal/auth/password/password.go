// Package password hashes and verifies account passwords.
//
// Verify never returns an error: malformed or foreign digests simply do not
// match. Hash rejects empty plaintexts and plaintexts beyond the algorithm
// maximum instead of silently truncating them.
package password

import (
	"strings"

	dErrors "warden/pkg/domain-errors"
)

// Algorithm names a hashing scheme.
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Hasher produces and checks password digests. Implementations embed a random
// salt per call and compare in constant time.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	// NeedsRehash reports whether digest was produced by another algorithm or
	// with weaker parameters than the hasher is configured for.
	NeedsRehash(digest string) bool
}

// Multi hashes with a primary hasher and verifies digests of any known
// algorithm, dispatching on the digest prefix.
type Multi struct {
	primary  Hasher
	bcrypt   *Bcrypt
	argon2id *Argon2id
}

// NewMulti builds a Multi hashing with the algorithm named by primary.
func NewMulti(primary Algorithm, b *Bcrypt, a *Argon2id) (*Multi, error) {
	if b == nil {
		b = NewBcrypt(DefaultBcryptCost)
	}
	if a == nil {
		a = NewArgon2id(DefaultArgon2Params())
	}
	m := &Multi{bcrypt: b, argon2id: a}
	switch primary {
	case AlgorithmBcrypt, "":
		m.primary = b
	case AlgorithmArgon2id:
		m.primary = a
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown password algorithm: "+string(primary))
	}
	return m, nil
}

func (m *Multi) Hash(plaintext string) (string, error) {
	return m.primary.Hash(plaintext)
}

func (m *Multi) Verify(plaintext, digest string) bool {
	switch detect(digest) {
	case AlgorithmArgon2id:
		return m.argon2id.Verify(plaintext, digest)
	case AlgorithmBcrypt:
		return m.bcrypt.Verify(plaintext, digest)
	default:
		return false
	}
}

func (m *Multi) NeedsRehash(digest string) bool {
	return m.primary.NeedsRehash(digest)
}

func detect(digest string) Algorithm {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return AlgorithmBcrypt
	default:
		return ""
	}
}

func checkPlaintext(plaintext string, maxLen int) error {
	if plaintext == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	if maxLen > 0 && len(plaintext) > maxLen {
		return dErrors.New(dErrors.CodeInvalidInput, "password is too long")
	}
	return nil
}
