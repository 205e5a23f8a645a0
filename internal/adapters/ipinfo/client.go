// Package ipinfo maps IP addresses to autonomous-system signatures using the
// ipinfo.io Lite API.
package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"gonephishing/internal/domain"
)

const DefaultBaseURL = "https://api.ipinfo.io"

type Options struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
}

type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *logrus.Entry
}

func New(opts Options, log *logrus.Entry) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log.WithField("component", "ipinfo"),
	}
}

type liteResponse struct {
	ASN      string `json:"asn"`
	ASName   string `json:"as_name"`
	ASDomain string `json:"as_domain"`
}

// Lookup never fails loudly: any transport, status or decode problem is
// logged and reported as ok=false.
func (c *Client) Lookup(ctx context.Context, ip string) (domain.ASSignature, bool) {
	sig, err := c.lookup(ctx, ip)
	if err != nil {
		c.log.WithError(err).WithField("ip", ip).Debug("as lookup failed")
		return domain.ASSignature{}, false
	}
	return sig, len(sig.Fields()) > 0
}

func (c *Client) lookup(ctx context.Context, ip string) (domain.ASSignature, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.ASSignature{}, err
	}
	endpoint := fmt.Sprintf("%s/lite/%s", c.base, url.PathEscape(ip))
	if c.token != "" {
		endpoint += "?token=" + url.QueryEscape(c.token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ASSignature{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ASSignature{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return domain.ASSignature{}, fmt.Errorf("ipinfo: unexpected status %s", resp.Status)
	}

	var body liteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return domain.ASSignature{}, fmt.Errorf("ipinfo: decode: %w", err)
	}
	return domain.ASSignature{ASN: body.ASN, ASDomain: body.ASDomain, ASName: body.ASName}, nil
}

// Disabled is used when no token is configured; ownership correlation then
// never matches.
type Disabled struct{}

func (Disabled) Lookup(context.Context, string) (domain.ASSignature, bool) {
	return domain.ASSignature{}, false
}
