package fetcher

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientConfig holds settings for the probing HTTP client.
type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Insecure skips certificate verification; certificates are not
	// inspected.
	Insecure bool
}

// agentRoundTripper sets the User-Agent on every outgoing request.
type agentRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

func (a *agentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if a.userAgent == "" {
		return a.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", a.userAgent)
	return a.base.RoundTrip(r)
}

// NewClient returns an HTTP client that never follows redirects on its own.
func NewClient(cfg ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.Timeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 2,
	}

	return &http.Client{
		Transport: &agentRoundTripper{base: transport, userAgent: cfg.UserAgent},
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// redirects are walked by Fetcher so every hop is inspected
			return http.ErrUseLastResponse
		},
	}
}
