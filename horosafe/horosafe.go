// Package horosafe checks operator-supplied targets before convwatch uses
// them: page and webhook URLs, page identifiers, and bounded reads of
// remote response bodies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	// ErrUnsafeScheme is returned when a URL is not http or https.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
	// ErrNoHost is returned when a URL has no hostname.
	ErrNoHost = errors.New("horosafe: URL has no host")
	// ErrPrivateTarget is returned when a URL resolves to a loopback,
	// link-local or private address and private targets are not allowed.
	ErrPrivateTarget = errors.New("horosafe: URL targets a private or loopback address")
)

// Resolver looks up the addresses of a host.
type Resolver func(host string) ([]string, error)

// LookupHost is the resolver used by ValidateURL.
var LookupHost Resolver = net.LookupHost

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
// Unless allowPrivate is set, the host must not be, or resolve to, a
// private address. An unresolvable host passes; the connection will fail
// on its own.
func ValidateURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return ErrNoHost
	}
	if allowPrivate {
		return nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivate(addr) {
			return ErrPrivateTarget
		}
		return nil
	}
	addrs, err := LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && IsPrivate(addr) {
			return ErrPrivateTarget
		}
	}
	return nil
}

// IsPrivate reports whether addr is loopback, link-local, unspecified or
// in a private range.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ValidateIdentifier accepts non-empty identifiers of at most 128 ASCII
// letters, digits, '_', '-' and '.'.
func ValidateIdentifier(s string) error {
	if s == "" {
		return errors.New("horosafe: identifier must not be empty")
	}
	if len(s) > 128 {
		return errors.New("horosafe: identifier too long (max 128)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r and fails when r holds more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return data[:maxBytes], fmt.Errorf("horosafe: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
