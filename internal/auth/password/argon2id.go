package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	dErrors "warden/pkg/domain-errors"
)

// Argon2idMaxLength bounds plaintexts so a single request cannot force
// arbitrarily long key derivation input.
const Argon2idMaxLength = 1024

var errInvalidHashFormat = errors.New("argon2id: invalid encoded hash format")

// Argon2Params are the tunable argon2id parameters.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Argon2Params) validate() error {
	switch {
	case p.Memory < 8*1024:
		return fmt.Errorf("%w: memory must be at least 8192", errInvalidHashFormat)
	case p.Iterations == 0:
		return fmt.Errorf("%w: iterations must be positive", errInvalidHashFormat)
	case p.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be positive", errInvalidHashFormat)
	case p.SaltLength < 8:
		return fmt.Errorf("%w: salt must be at least 8 bytes", errInvalidHashFormat)
	case p.KeyLength < 16:
		return fmt.Errorf("%w: key must be at least 16 bytes", errInvalidHashFormat)
	}
	return nil
}

type Argon2id struct {
	params Argon2Params
}

// NewArgon2id returns an argon2id hasher. Invalid params fall back to the defaults.
func NewArgon2id(params Argon2Params) *Argon2id {
	if params.validate() != nil {
		params = DefaultArgon2Params()
	}
	return &Argon2id{params: params}
}

// Hash returns a PHC string: $argon2id$v=19$m=<KiB>,t=<iter>,p=<par>$<salt>$<hash>.
func (a *Argon2id) Hash(plaintext string) (string, error) {
	if err := checkPlaintext(plaintext, Argon2idMaxLength); err != nil {
		return "", err
	}
	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate salt")
	}
	p := a.params
	sum := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

func (a *Argon2id) Verify(plaintext, digest string) bool {
	if plaintext == "" || len(plaintext) > Argon2idMaxLength {
		return false
	}
	params, salt, expected, err := decodeArgon2id(digest)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func (a *Argon2id) NeedsRehash(digest string) bool {
	params, _, _, err := decodeArgon2id(digest)
	if err != nil {
		return true
	}
	return params.Memory < a.params.Memory ||
		params.Iterations < a.params.Iterations ||
		params.Parallelism < a.params.Parallelism ||
		params.KeyLength < a.params.KeyLength
}

func decodeArgon2id(encoded string) (Argon2Params, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errInvalidHashFormat
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %q", errInvalidHashFormat, parts[2])
	}

	var p Argon2Params
	for _, entry := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return Argon2Params{}, nil, nil, errInvalidHashFormat
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Argon2Params{}, nil, nil, errInvalidHashFormat
			}
			p.Memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Argon2Params{}, nil, nil, errInvalidHashFormat
			}
			p.Iterations = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return Argon2Params{}, nil, nil, errInvalidHashFormat
			}
			p.Parallelism = uint8(v)
		default:
			return Argon2Params{}, nil, nil, errInvalidHashFormat
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errInvalidHashFormat
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, errInvalidHashFormat
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(hash))
	if err := p.validate(); err != nil {
		return Argon2Params{}, nil, nil, err
	}
	return p, salt, hash, nil
}
