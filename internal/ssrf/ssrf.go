// Package ssrf validates webhook destination URLs so the delivery
// pipeline cannot be pointed at internal network addresses.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// cgnat is 100.64.0.0/10 (RFC 6598), not covered by net.IP.IsPrivate.
var cgnat = net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Validator checks a candidate URL by resolving its hostname and
// classifying every returned address. Resolution happens once, at
// subscription creation; deliveries do not re-validate.
type Validator struct {
	// TestMode permits http://localhost and http://127.0.0.1 for local
	// integration testing. Never enabled in production config.
	TestMode bool

	// LookupIPAddr defaults to net.DefaultResolver; injectable for tests.
	LookupIPAddr func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func NewValidator(testMode bool) *Validator {
	return &Validator{
		TestMode:     testMode,
		LookupIPAddr: net.DefaultResolver.LookupIPAddr,
	}
}

// Validate returns nil when the URL is safe to register. DNS failure is
// a rejection: an unresolvable name must not be stored and retried
// against whatever it resolves to later.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	// the escape hatch covers exactly http://localhost and
	// http://127.0.0.1; https or other loopback names still resolve
	// and get classified below
	if v.TestMode && u.Scheme == "http" && (host == "localhost" || host == "127.0.0.1") {
		return nil
	}

	addrs, err := v.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("hostname did not resolve: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("hostname %q resolved to no addresses", host)
	}

	// One bad address is enough to reject the whole registration.
	for _, addr := range addrs {
		ip := addr.IP
		if v4 := ip.To4(); v4 != nil {
			ip = v4 // normalize IPv4-mapped IPv6
		}
		if reason := classify(ip); reason != "" {
			return fmt.Errorf("resolved IP %s is in a %s range", ip, reason)
		}
	}
	return nil
}

func classify(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate(): // RFC 1918 and IPv6 unique-local fc00::/7
		return "private"
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsUnspecified():
		return "unspecified"
	case ip.To4() != nil && cgnat.Contains(ip):
		return "carrier-grade NAT"
	}
	return ""
}
