// Package brand holds the registrable-domain and identity-provider rules shared
// by the fetcher and the scorer.
package brand

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"

	"gonephishing/internal/config"
)

// BaseDomain returns the registrable domain (eTLD+1) of host, or host itself
// when it has none (IP literals, single labels).
func BaseDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	if base, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return base
	}
	return host
}

// Token is the leftmost label of the registrable domain: "example" for
// "login.example.co.uk".
func Token(host string) string {
	base := BaseDomain(host)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

// Within reports whether host equals base or is a subdomain of it.
func Within(host, base string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	base = strings.ToLower(base)
	return base != "" && (host == base || strings.HasSuffix(host, "."+base))
}

// Providers is the configured set of OAuth identity providers.
type Providers []config.OAuthProvider

// Unexpected reports whether host belongs to a provider that the site at
// seedBase has no business sending users to. A seed is trusted by a provider
// when its registrable domain contains one of the provider's brands.
func (p Providers) Unexpected(host, seedBase string) bool {
	seedBase = strings.ToLower(seedBase)
	for _, prov := range p {
		if !Within(host, prov.Host) {
			continue
		}
		for _, b := range prov.TrustedBrands {
			if b = strings.ToLower(strings.TrimSpace(b)); b != "" && strings.Contains(seedBase, b) {
				return false
			}
		}
		return true
	}
	return false
}
