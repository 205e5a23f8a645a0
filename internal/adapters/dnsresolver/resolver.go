// Package dnsresolver resolves candidate hosts to addresses, either through a
// configured upstream server with miekg/dns or through the system resolver.
package dnsresolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrNoAddresses is returned when neither A nor AAAA records exist.
var ErrNoAddresses = errString("no A or AAAA records")

type errString string

func (e errString) Error() string { return string(e) }

// Resolver queries a single upstream server directly.
type Resolver struct {
	client *dns.Client
	server string
}

// New returns a resolver for server ("host:port"; port 53 is assumed when
// omitted).
func New(server string, timeout time.Duration) *Resolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{client: &dns.Client{Timeout: timeout}, server: server}
}

// LookupHost returns the A and AAAA addresses of host. CNAME chains are
// followed by the upstream; only address records are collected.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	var (
		out     []string
		lastErr error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		out = append(out, addrs...)
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNoAddresses
	}
	return out, nil
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(strings.ToLower(host)), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], host, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, fmt.Errorf("%s: %w", host, ErrNoAddresses)
	default:
		return nil, fmt.Errorf("%s %s: rcode %s", dns.TypeToString[qtype], host, dns.RcodeToString[resp.Rcode])
	}

	var out []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, v.A.String())
		case *dns.AAAA:
			out = append(out, v.AAAA.String())
		}
	}
	return out, nil
}

// System uses the operating system's resolver configuration.
type System struct {
	Resolver *net.Resolver
}

func (s System) LookupHost(ctx context.Context, host string) ([]string, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	return r.LookupHost(ctx, host)
}
