package fetcher

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"gonephishing/internal/services/brand"
	"gonephishing/internal/services/variants"
)

type Options struct {
	MaxRedirects  int
	MaxBodyBytes  int64
	Timeout       time.Duration
	RatePerSecond float64
	UserAgent     string
	Providers     brand.Providers
	// Schemes are tried in order; the first that yields any response wins.
	Schemes []string
}

// Page is what a candidate served. Responded is false when no scheme produced
// an HTTP response at all.
type Page struct {
	Body          string
	HTTPStatus    int
	HTTPReason    string
	RedirectHosts []string
	// RedirectLocation is the absolute target of the last hop that left the
	// candidate's own host, empty when the chain stayed on it.
	RedirectLocation        string
	FinalURL                string
	UnexpectedOAuthRedirect bool
	Responded               bool
}

type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	log     *logrus.Entry
}

func New(opts Options, log *logrus.Entry) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if len(opts.Schemes) == 0 {
		opts.Schemes = []string{"http", "https"}
	}
	limit, burst := rate.Inf, 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		if opts.RatePerSecond > 1 {
			burst = int(opts.RatePerSecond)
		}
	}
	return &Fetcher{
		client:  NewClient(ClientConfig{Timeout: opts.Timeout, UserAgent: opts.UserAgent, Insecure: true}),
		limiter: rate.NewLimiter(limit, burst),
		opts:    opts,
		log:     log.WithField("component", "fetcher"),
	}
}

// Fetch retrieves the landing page of candidate, walking redirects by hand.
// Network failures are not errors: they yield a Page with Responded=false.
// The only error is cancellation of ctx.
func (f *Fetcher) Fetch(ctx context.Context, seed, candidate string) (*Page, error) {
	host, err := wireHost(candidate)
	if err != nil {
		f.log.WithField("candidate", candidate).Debug("candidate is not fetchable")
		return &Page{}, nil
	}
	seedBase := brand.BaseDomain(seed)
	for _, scheme := range f.opts.Schemes {
		page, err := f.follow(ctx, seedBase, scheme+"://"+host+"/")
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.WithError(err).WithFields(logrus.Fields{"candidate": candidate, "scheme": scheme}).Debug("fetch attempt failed")
	}
	return &Page{}, nil
}

// follow returns an error only when the first request gets no response.
func (f *Fetcher) follow(ctx context.Context, seedBase, start string) (*Page, error) {
	current, err := url.Parse(start)
	if err != nil {
		return nil, err
	}
	origin := current.Hostname()
	page := &Page{}

	for hop := 0; ; hop++ {
		resp, err := f.get(ctx, current.String())
		if err != nil {
			if hop == 0 {
				return nil, err
			}
			// the chain broke mid-way; keep what the last response told us
			return page, nil
		}
		page.Responded = true
		page.HTTPStatus = resp.StatusCode
		page.HTTPReason = reason(resp)
		page.FinalURL = current.String()

		loc := resp.Header.Get("Location")
		if isRedirect(resp.StatusCode) && loc != "" && hop < f.opts.MaxRedirects {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()

			next, err := current.Parse(strings.TrimSpace(loc))
			if err != nil || next.Hostname() == "" {
				return page, nil
			}
			host := strings.ToLower(next.Hostname())
			page.RedirectHosts = append(page.RedirectHosts, host)
			if !strings.EqualFold(host, origin) {
				page.RedirectLocation = next.String()
			}
			if f.opts.Providers.Unexpected(host, seedBase) {
				page.UnexpectedOAuthRedirect = true
			}
			current = next
			continue
		}

		page.Body = f.readBody(resp)
		_ = resp.Body.Close()
		return page, nil
	}
}

func (f *Fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	return f.client.Do(req)
}

// readBody reads up to MaxBodyBytes and decodes them to UTF-8 using the
// declared or sniffed charset.
func (f *Fetcher) readBody(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil && len(raw) == 0 {
		return ""
	}
	r, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func isRedirect(code int) bool { return code >= 300 && code < 400 }

func reason(resp *http.Response) string {
	r := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if r == "" {
		r = http.StatusText(resp.StatusCode)
	}
	return r
}

// wireHost converts a candidate (optionally host:port) into the form used in
// a URL authority.
func wireHost(candidate string) (string, error) {
	if h, port, err := net.SplitHostPort(candidate); err == nil {
		ascii, err := variants.ASCII(h)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(ascii, port), nil
	}
	return variants.ASCII(candidate)
}
