// Package app assembles the scan pipeline from configuration. It is shared by
// the server and the phishctl command.
package app

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"gonephishing/internal/adapters/abusereport"
	"gonephishing/internal/adapters/dnsresolver"
	"gonephishing/internal/adapters/ipinfo"
	pg "gonephishing/internal/adapters/postgres"
	"gonephishing/internal/adapters/sqlite"
	"gonephishing/internal/config"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/brand"
	"gonephishing/internal/services/fetcher"
	"gonephishing/internal/services/ownership"
	"gonephishing/internal/services/scoring"
	"gonephishing/internal/services/variants"
)

// OpenStore connects the configured task store and applies its migrations.
func OpenStore(ctx context.Context, cfg config.Config) (ports.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, config.ErrNoDatabaseURL
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// Pipeline holds the stateless stages built from the detection config.
type Pipeline struct {
	Generator *variants.Generator
	Ownership *ownership.Resolver
	Fetcher   *fetcher.Fetcher
	Scorer    *scoring.Scorer
}

func NewPipeline(cfg config.Config, log *logrus.Entry) Pipeline {
	det := cfg.Detection

	var hosts ports.HostResolver = dnsresolver.System{Resolver: net.DefaultResolver}
	if cfg.DNSServer != "" {
		hosts = dnsresolver.New(cfg.DNSServer, det.DNSTimeout)
	}
	var as ports.ASLookup = ipinfo.Disabled{}
	if cfg.IPInfoToken != "" {
		as = ipinfo.New(ipinfo.Options{
			Token:         cfg.IPInfoToken,
			Timeout:       det.WhoisTimeout,
			RatePerSecond: det.WhoisRatePerSecond,
		}, log)
	} else {
		log.Warn("IPINFO_TOKEN not set; ownership correlation disabled")
	}

	return Pipeline{
		Generator: variants.New(variants.Options{
			MaxVariants:   det.MaxVariants,
			AlternateTLDs: det.AlternateTLDs,
			BrandTokens:   det.BrandTokens,
		}),
		Ownership: ownership.New(hosts, as, ownership.Options{
			DNSTimeout:   det.DNSTimeout,
			WhoisTimeout: det.WhoisTimeout,
			CacheTTL:     det.OwnershipCacheTTL,
		}, log),
		Fetcher: fetcher.New(fetcher.Options{
			MaxRedirects:  det.MaxRedirects,
			MaxBodyBytes:  det.MaxBodyBytes,
			Timeout:       det.FetchTimeout,
			RatePerSecond: det.FetchRatePerSecond,
			UserAgent:     det.UserAgent,
			Providers:     brand.Providers(det.OAuthProviders),
		}, log),
		Scorer: scoring.New(det),
	}
}

// NewReportSink files Cloudflare abuse reports when credentials are
// configured and logs findings otherwise.
func NewReportSink(cfg config.Config, log *logrus.Entry) ports.ReportSink {
	if !cfg.Cloudflare.Enabled() {
		return abusereport.Log{Log: log.WithField("component", "report")}
	}
	return abusereport.NewCloudflare(abusereport.CloudflareOptions{
		AccountID: cfg.Cloudflare.AccountID,
		APIToken:  cfg.Cloudflare.APIToken,
		Email:     cfg.Cloudflare.Email,
	})
}
