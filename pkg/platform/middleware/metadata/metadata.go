// Package metadata resolves the client IP and User-Agent of a request and
// stores them on the request context. The client IP keys per-IP rate limits,
// so forwarding headers are only honored when the direct peer is a trusted proxy.
package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"warden/pkg/requestcontext"
)

// MaxXFFHeaderLength caps the X-Forwarded-For header that is parsed at all.
const MaxXFFHeaderLength = 500

// UnknownIP is recorded when the peer address cannot be parsed.
const UnknownIP = "unknown"

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies lists the networks allowed to set X-Forwarded-For and
	// X-Real-IP. Empty means forwarding headers are never trusted.
	TrustedProxies []netip.Prefix
}

// ParseTrustedProxies parses a comma-separated list of CIDRs or bare addresses.
func ParseTrustedProxies(csv string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// Middleware handles client metadata extraction with configurable trusted proxies.
type Middleware struct {
	trusted []netip.Prefix
}

// NewMiddleware creates a new metadata middleware with the given config.
// A nil config trusts no proxies.
func NewMiddleware(cfg *Config) *Middleware {
	m := &Middleware{}
	if cfg != nil {
		m.trusted = cfg.TrustedProxies
	}
	return m
}

// Handler adds the client IP and User-Agent to the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP resolves the originating client address of r.
//
// Forwarded chains are walked right to left, skipping trusted hops; the first
// untrusted address is the client. A client can prepend anything to the
// header, so the leftmost entry is never taken on faith.
func (m *Middleware) ClientIP(r *http.Request) string {
	peer, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok {
		return UnknownIP
	}
	if !m.isTrusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if len(xff) > MaxXFFHeaderLength {
			return peer.String()
		}
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return peer.String()
			}
			addr = addr.Unmap()
			if !m.isTrusted(addr) {
				return addr.String()
			}
		}
		return peer.String()
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer.String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if remoteAddr == "" {
		return netip.Addr{}, false
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
