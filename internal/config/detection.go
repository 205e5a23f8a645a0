package config

import (
	"fmt"
	"time"

	"gonephishing/internal/domain"
)

// Detection is the tunable surface of the scan pipeline: generator bounds,
// network timeouts, and the scoring weight table.
type Detection struct {
	MaxVariants  int   `yaml:"max_variants"`
	MaxRedirects int   `yaml:"max_redirects"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	WhoisTimeout time.Duration `yaml:"whois_timeout"`
	DNSTimeout   time.Duration `yaml:"dns_timeout"`

	FetchRatePerSecond float64 `yaml:"fetch_rate_per_second"`
	WhoisRatePerSecond float64 `yaml:"whois_rate_per_second"`
	UserAgent          string  `yaml:"user_agent"`

	ScoreWeights        map[string]int `yaml:"score_weights"`
	DangerThreshold     int            `yaml:"danger_threshold"`
	SuspiciousThreshold int            `yaml:"suspicious_threshold"`

	PollInterval      time.Duration `yaml:"poll_interval"`
	PersistTimeout    time.Duration `yaml:"persist_timeout"`
	OwnershipCacheTTL time.Duration `yaml:"ownership_cache_ttl"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`

	OAuthProviders []OAuthProvider `yaml:"oauth_providers"`
	AlternateTLDs  []string        `yaml:"alternate_tlds"`
	BrandTokens    []string        `yaml:"brand_tokens"`
}

// OAuthProvider is an identity-provider host. Seeds whose brand contains one
// of TrustedBrands may legitimately redirect or post to it.
type OAuthProvider struct {
	Host          string   `yaml:"host"`
	TrustedBrands []string `yaml:"trusted_brands"`
}

func DefaultWeights() map[string]int {
	return map[string]int{
		string(domain.SignalImpersonatingTitle):      35,
		string(domain.SignalInternalRedirect):        20,
		string(domain.SignalExternalRedirect):        35,
		string(domain.SignalCredentialForm):          60,
		string(domain.SignalFormPostsThirdParty):     40,
		string(domain.SignalBrandImage):              35,
		string(domain.SignalLogoImage):               5,
		string(domain.SignalObfuscatedJS):            20,
		string(domain.SignalHiddenIframe):            50,
		string(domain.SignalUnexpectedOAuthRedirect): 50,
	}
}

func DefaultDetection() Detection {
	return Detection{
		MaxVariants:  1000,
		MaxRedirects: 7,
		MaxBodyBytes: 2 << 20,

		FetchTimeout: 10 * time.Second,
		WhoisTimeout: 5 * time.Second,
		DNSTimeout:   3 * time.Second,

		FetchRatePerSecond: 0,
		WhoisRatePerSecond: 10,
		UserAgent:          "GonePhishing/1.0 (+phishing-lookalike-scanner)",

		ScoreWeights:        DefaultWeights(),
		DangerThreshold:     100,
		SuspiciousThreshold: 30,

		PollInterval:      time.Second,
		PersistTimeout:    5 * time.Second,
		OwnershipCacheTTL: 10 * time.Minute,
		StaleAfter:        10 * time.Minute,
		SweepInterval:     time.Minute,
		MaxAttempts:       3,

		OAuthProviders: []OAuthProvider{
			{Host: "accounts.google.com", TrustedBrands: []string{"google", "youtube", "gmail"}},
			{Host: "login.microsoftonline.com", TrustedBrands: []string{"microsoft", "office", "outlook", "live", "xbox"}},
			{Host: "login.live.com", TrustedBrands: []string{"microsoft", "outlook", "live", "xbox"}},
			{Host: "appleid.apple.com", TrustedBrands: []string{"apple", "icloud"}},
			{Host: "facebook.com", TrustedBrands: []string{"facebook", "instagram", "meta"}},
			{Host: "github.com", TrustedBrands: []string{"github"}},
			{Host: "okta.com", TrustedBrands: []string{"okta"}},
		},
		AlternateTLDs: []string{
			"com", "net", "org", "co", "io", "info", "biz", "app", "xyz", "online",
			"site", "shop", "top", "us", "uk", "de", "ru", "cn", "cc", "me",
		},
		BrandTokens: []string{"secure", "login", "online", "app", "account", "verify", "support", "my"},
	}
}

// Validate checks the weight table and thresholds for consistency.
func (d Detection) Validate() error {
	for name, w := range d.ScoreWeights {
		if !domain.KnownSignal(name) {
			return fmt.Errorf("unknown score weight %q", name)
		}
		if w < 0 {
			return fmt.Errorf("score weight %q must be >= 0, got %d", name, w)
		}
	}
	if d.SuspiciousThreshold < 0 || d.DangerThreshold < 0 {
		return fmt.Errorf("thresholds must be >= 0")
	}
	if d.SuspiciousThreshold > d.DangerThreshold {
		return fmt.Errorf("suspicious_threshold (%d) exceeds danger_threshold (%d)", d.SuspiciousThreshold, d.DangerThreshold)
	}
	if d.MaxVariants < 1 {
		return fmt.Errorf("max_variants must be >= 1, got %d", d.MaxVariants)
	}
	if d.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must be >= 0, got %d", d.MaxRedirects)
	}
	if d.FetchTimeout <= 0 || d.WhoisTimeout <= 0 || d.DNSTimeout <= 0 {
		return fmt.Errorf("fetch, whois and dns timeouts must be > 0")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	return nil
}
