package models

import (
	"fmt"
	"strings"
)

// KeyPrefix represents the kind of client identity a key is derived from.
type KeyPrefix string

const (
	KeyPrefixIP   KeyPrefix = "ip"
	KeyPrefixUser KeyPrefix = "user"
)

// ClientKey identifies the caller being throttled: a client IP or an authenticated account.
type ClientKey struct {
	prefix     KeyPrefix
	identifier string
}

// NewIPKey creates a client key from a resolved client address.
func NewIPKey(ip string) ClientKey {
	return ClientKey{prefix: KeyPrefixIP, identifier: ip}
}

// NewUserKey creates a client key from an authenticated account identifier.
func NewUserKey(accountID string) ClientKey {
	return ClientKey{prefix: KeyPrefixUser, identifier: accountID}
}

func (k ClientKey) IsZero() bool {
	return k.identifier == ""
}

func (k ClientKey) Prefix() KeyPrefix {
	return k.prefix
}

func (k ClientKey) Identifier() string {
	return k.identifier
}

// String returns "<prefix>:<identifier>" without route scoping.
func (k ClientKey) String() string {
	return fmt.Sprintf("%s:%s", k.prefix, sanitizeKeySegment(k.identifier))
}

// StorageKey returns the key under which window state for (client, route) is stored.
// Both segments are escaped, so an identifier containing ':' cannot address another route.
func StorageKey(client ClientKey, route Route) string {
	return fmt.Sprintf("%s:%s:%s",
		client.prefix,
		sanitizeKeySegment(client.identifier),
		sanitizeKeySegment(string(route)),
	)
}

// sanitizeKeySegment escapes delimiter characters in key segments so that
// user-controlled identifiers containing ':' cannot collide with adjacent keys.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// Examples:
//   - "user:admin"  → "user_cadmin"
//   - "user_admin"  → "user__admin"
//   - "user_:admin" → "user___cadmin"
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
