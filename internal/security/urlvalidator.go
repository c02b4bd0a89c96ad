package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrPrivateIP     = errors.New("URL resolves to private IP address")
	ErrUntrustedHost = errors.New("URL host is not trusted")
	ErrInvalidScheme = errors.New("only HTTPS URLs are allowed")
)

// DefaultTrustedHosts are the hosts Google serves generated and shared
// images from.
var DefaultTrustedHosts = []string{
	"storage.googleapis.com",
	"lh3.googleusercontent.com",
	"generativelanguage.googleapis.com",
}

// URLPolicy decides whether a remote image reference may be fetched.
type URLPolicy struct {
	// Strict limits fetches to TrustedHosts and their subdomains.
	Strict       bool
	TrustedHosts []string
	// LookupIP defaults to net.LookupIP.
	LookupIP func(host string) ([]net.IP, error)
}

func DefaultURLPolicy() *URLPolicy {
	return &URLPolicy{TrustedHosts: DefaultTrustedHosts}
}

func (p *URLPolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := strings.ToLower(parsed.Hostname())
	if p.Strict && !p.trusted(host) {
		return ErrUntrustedHost
	}
	return p.checkHostIP(host)
}

func (p *URLPolicy) trusted(host string) bool {
	return lo.SomeBy(p.TrustedHosts, func(allowed string) bool {
		return host == allowed || strings.HasSuffix(host, "."+allowed)
	})
}

func (p *URLPolicy) checkHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return lo.Ternary(isPrivateIP(ip), ErrPrivateIP, nil)
	}

	lookup := p.LookupIP
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(host)
	if err != nil {
		// unresolvable hosts fail later at fetch time
		return nil
	}
	if lo.SomeBy(ips, isPrivateIP) {
		return ErrPrivateIP
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // CGNAT
			return true
		case ip4[0] == 192 && ip4[1] == 0 && (ip4[2] == 0 || ip4[2] == 2):
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100:
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113:
			return true
		case ip4[0] >= 240:
			return true
		}
	}

	return false
}
