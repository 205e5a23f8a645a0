package ownership

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/variants"
)

type Options struct {
	DNSTimeout   time.Duration
	WhoisTimeout time.Duration
	CacheTTL     time.Duration
}

// Result is the outcome of ownership correlation. Status is no_ip,
// owned_by_origin, or unknown when neither short-circuit fires.
type Result struct {
	IPs    []string
	Status domain.LookupStatus
}

// Resolver decides whether a candidate is served from the seed's own
// infrastructure. Seed signatures are cached per seed for CacheTTL.
type Resolver struct {
	hosts ports.HostResolver
	as    ports.ASLookup
	opts  Options
	log   *logrus.Entry
	now   func() time.Time

	mu    sync.Mutex
	seeds map[string]seedEntry
}

type seedEntry struct {
	fields  map[string]struct{}
	expires time.Time
}

func New(hosts ports.HostResolver, as ports.ASLookup, opts Options, log *logrus.Entry) *Resolver {
	if opts.DNSTimeout <= 0 {
		opts.DNSTimeout = 3 * time.Second
	}
	if opts.WhoisTimeout <= 0 {
		opts.WhoisTimeout = 5 * time.Second
	}
	return &Resolver{
		hosts: hosts,
		as:    as,
		opts:  opts,
		log:   log.WithField("component", "ownership"),
		now:   time.Now,
		seeds: make(map[string]seedEntry),
	}
}

// Resolve looks up candidate and correlates its AS signatures with the
// seed's. DNS and AS failures degrade to empty data; the only error returned
// is cancellation of ctx.
func (r *Resolver) Resolve(ctx context.Context, seed, candidate string) (Result, error) {
	ips := r.lookupHost(ctx, candidate)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(ips) == 0 {
		return Result{Status: domain.LookupNoIP}, nil
	}
	res := Result{IPs: ips, Status: domain.LookupUnknown}
	if strings.EqualFold(seed, candidate) {
		return res, nil
	}

	base := r.seedSignature(ctx, seed)
	if len(base) == 0 {
		return res, nil
	}
	for _, ip := range ips {
		sig, ok := r.lookupAS(ctx, ip)
		if !ok {
			continue
		}
		for _, f := range sig.Fields() {
			if _, hit := base[f]; hit {
				r.log.WithFields(logrus.Fields{"candidate": candidate, "ip": ip, "match": f}).Debug("candidate shares seed infrastructure")
				res.Status = domain.LookupOwnedByOrigin
				return res, nil
			}
		}
	}
	return res, ctx.Err()
}

func (r *Resolver) lookupHost(ctx context.Context, host string) []string {
	ascii, err := variants.ASCII(host)
	if err != nil {
		r.log.WithField("host", host).Debug("not a resolvable host name")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.DNSTimeout)
	defer cancel()
	ips, err := r.hosts.LookupHost(ctx, ascii)
	if err != nil {
		r.log.WithError(err).WithField("host", ascii).Debug("dns lookup failed")
		return nil
	}
	return ips
}

func (r *Resolver) lookupAS(ctx context.Context, ip string) (domain.ASSignature, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.WhoisTimeout)
	defer cancel()
	return r.as.Lookup(ctx, ip)
}

func (r *Resolver) seedSignature(ctx context.Context, seed string) map[string]struct{} {
	key := strings.ToLower(seed)
	now := r.now()

	r.mu.Lock()
	if e, ok := r.seeds[key]; ok && now.Before(e.expires) {
		r.mu.Unlock()
		return e.fields
	}
	r.mu.Unlock()

	fields := make(map[string]struct{})
	for _, ip := range r.lookupHost(ctx, seed) {
		if sig, ok := r.lookupAS(ctx, ip); ok {
			for _, f := range sig.Fields() {
				fields[f] = struct{}{}
			}
		}
	}
	// Empty results are not cached so a transient lookup failure is retried
	// on the next candidate.
	if len(fields) > 0 && r.opts.CacheTTL > 0 {
		r.mu.Lock()
		r.seeds[key] = seedEntry{fields: fields, expires: now.Add(r.opts.CacheTTL)}
		r.mu.Unlock()
	}
	return fields
}
