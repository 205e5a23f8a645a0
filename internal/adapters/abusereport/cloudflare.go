// Package abusereport delivers danger findings to third parties.
package abusereport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gonephishing/internal/ports"
)

const DefaultCloudflareURL = "https://api.cloudflare.com/client/v4"

type CloudflareOptions struct {
	BaseURL   string
	AccountID string
	APIToken  string
	Email     string
	Name      string
	Timeout   time.Duration
}

// Cloudflare files phishing abuse reports through the Cloudflare API.
type Cloudflare struct {
	opts CloudflareOptions
	http *http.Client
}

func NewCloudflare(opts CloudflareOptions) *Cloudflare {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultCloudflareURL
	}
	if opts.Name == "" {
		opts.Name = "Gone Phishing"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Cloudflare{opts: opts, http: &http.Client{Timeout: opts.Timeout}}
}

type phishingReport struct {
	Act               string `json:"act"`
	Email             string `json:"email"`
	Email2            string `json:"email2"`
	HostNotification  string `json:"host_notification"`
	OwnerNotification string `json:"owner_notification"`
	Justification     string `json:"justification"`
	Name              string `json:"name"`
	URLs              string `json:"urls"`
}

func (c *Cloudflare) Report(ctx context.Context, items []ports.ReportItem) error {
	if len(items) == 0 {
		return nil
	}
	urls := make([]string, 0, len(items))
	lines := make([]string, 0, len(items))
	for _, it := range items {
		urls = append(urls, "http://"+it.CandidateDomain+"/")
		lines = append(lines, fmt.Sprintf("%s: %s", it.CandidateDomain, strings.Join(it.Reasons, ", ")))
	}
	payload, err := json.Marshal(phishingReport{
		Act:               "abuse_phishing",
		Email:             c.opts.Email,
		Email2:            c.opts.Email,
		HostNotification:  "send",
		OwnerNotification: "send",
		Justification:     "Automated phishing report. Signals observed:\n" + strings.Join(lines, "\n"),
		Name:              c.opts.Name,
		URLs:              strings.Join(urls, "\n"),
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/abuse-reports/phishing", strings.TrimRight(c.opts.BaseURL, "/"), c.opts.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cloudflare report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return fmt.Errorf("cloudflare report: status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// Log records findings in the application log instead of sending them.
type Log struct {
	Log *logrus.Entry
}

func (l Log) Report(_ context.Context, items []ports.ReportItem) error {
	for _, it := range items {
		l.Log.WithFields(logrus.Fields{
			"candidate": it.CandidateDomain,
			"reasons":   strings.Join(it.Reasons, ","),
		}).Warn("phishing candidate detected")
	}
	return nil
}
