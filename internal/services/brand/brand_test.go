package brand

import (
	"testing"

	"gonephishing/internal/config"
)

func TestBaseDomainAndToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		host, base, token string
	}{
		{"example.com", "example.com", "example"},
		{"login.Example.com.", "example.com", "example"},
		{"secure.example.co.uk", "example.co.uk", "example"},
		{"127.0.0.1", "127.0.0.1", "127"},
		{"localhost", "localhost", "localhost"},
	}
	for _, tc := range tests {
		if got := BaseDomain(tc.host); got != tc.base {
			t.Errorf("BaseDomain(%q) = %q, want %q", tc.host, got, tc.base)
		}
		if got := Token(tc.host); got != tc.token {
			t.Errorf("Token(%q) = %q, want %q", tc.host, got, tc.token)
		}
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		host, base string
		want       bool
	}{
		{"example.com", "example.com", true},
		{"www.example.com", "example.com", true},
		{"badexample.com", "example.com", false},
		{"example.com.evil.net", "example.com", false},
		{"example.com", "", false},
	}
	for _, tc := range tests {
		if got := Within(tc.host, tc.base); got != tc.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tc.host, tc.base, got, tc.want)
		}
	}
}

func TestProvidersUnexpected(t *testing.T) {
	t.Parallel()
	p := Providers(config.DefaultDetection().OAuthProviders)
	tests := []struct {
		name, host, seed string
		want             bool
	}{
		{"googleForForeignSeed", "accounts.google.com", "example.com", true},
		{"googleForYoutube", "accounts.google.com", "youtube.com", false},
		{"subdomainOfProvider", "www.facebook.com", "example.com", true},
		{"notAProvider", "cdn.example.net", "example.com", false},
		{"microsoftForOffice", "login.microsoftonline.com", "office.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Unexpected(tc.host, tc.seed); got != tc.want {
				t.Fatalf("Unexpected(%q, %q) = %v, want %v", tc.host, tc.seed, got, tc.want)
			}
		})
	}
}
