package abusereport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"gonephishing/internal/ports"
)

func TestCloudflareReport(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		got     phishingReport
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cf := NewCloudflare(CloudflareOptions{BaseURL: srv.URL, AccountID: "acct", APIToken: "tok", Email: "soc@example.com"})
	err := cf.Report(context.Background(), []ports.ReportItem{
		{CandidateDomain: "exampl.com", Reasons: []string{"hasCredentialForm", "formPostsThirdParty"}},
		{CandidateDomain: "examp1e.com", Reasons: []string{"hiddenIframe"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/accounts/acct/abuse-reports/phishing" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if got.Act != "abuse_phishing" || got.Email != "soc@example.com" || got.Email2 != "soc@example.com" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.URLs != "http://exampl.com/\nhttp://examp1e.com/" {
		t.Fatalf("urls = %q", got.URLs)
	}
	if !strings.Contains(got.Justification, "exampl.com: hasCredentialForm, formPostsThirdParty") {
		t.Fatalf("justification = %q", got.Justification)
	}
}

func TestCloudflareReportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"message":"bad urls"}]}`))
	}))
	defer srv.Close()

	cf := NewCloudflare(CloudflareOptions{BaseURL: srv.URL, AccountID: "acct", APIToken: "tok"})
	err := cf.Report(context.Background(), []ports.ReportItem{{CandidateDomain: "exampl.com"}})
	if err == nil || !strings.Contains(err.Error(), "bad urls") {
		t.Fatalf("expected error with body, got %v", err)
	}
}

func TestCloudflareReportEmpty(t *testing.T) {
	cf := NewCloudflare(CloudflareOptions{BaseURL: "http://127.0.0.1:1"})
	if err := cf.Report(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op: %v", err)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	sink := Log{Log: logrus.NewEntry(log)}
	if err := sink.Report(context.Background(), []ports.ReportItem{{CandidateDomain: "exampl.com", Reasons: []string{"hiddenIframe"}}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"candidate":"exampl.com"`) {
		t.Fatalf("log output = %s", buf.String())
	}
}
