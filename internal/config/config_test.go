package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Detection.MaxRedirects != 7 {
		t.Errorf("MaxRedirects = %d, want 7", cfg.Detection.MaxRedirects)
	}
	if cfg.Detection.ScoreWeights["hasCredentialForm"] != 60 {
		t.Errorf("credential form weight = %d, want 60", cfg.Detection.ScoreWeights["hasCredentialForm"])
	}
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CONFIG_FILE", "")

	_, err := Load()
	if !errors.Is(err, ErrNoDatabaseURL) {
		t.Fatalf("expected ErrNoDatabaseURL, got %v", err)
	}
}

func TestLoadDetectionFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
detection:
  max_variants: 50
  fetch_timeout: 3s
  danger_threshold: 120
  score_weights:
    hiddenIframe: 10
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("POLL_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	det := cfg.Detection
	if det.MaxVariants != 50 {
		t.Errorf("MaxVariants = %d, want 50", det.MaxVariants)
	}
	if det.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %s, want 3s", det.FetchTimeout)
	}
	if det.DangerThreshold != 120 {
		t.Errorf("DangerThreshold = %d, want 120", det.DangerThreshold)
	}
	if det.ScoreWeights["hiddenIframe"] != 10 {
		t.Errorf("hiddenIframe weight = %d, want 10", det.ScoreWeights["hiddenIframe"])
	}
	if det.ScoreWeights["hasCredentialForm"] != 60 {
		t.Errorf("unlisted weights should keep defaults, got %d", det.ScoreWeights["hasCredentialForm"])
	}
	if det.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %s, want 250ms", det.PollInterval)
	}
}

func TestDetectionValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Detection)
	}{
		{"unknown weight", func(d *Detection) { d.ScoreWeights["madeUp"] = 1 }},
		{"negative weight", func(d *Detection) { d.ScoreWeights["obfuscatedJS"] = -5 }},
		{"inverted thresholds", func(d *Detection) { d.SuspiciousThreshold = 200 }},
		{"zero variants", func(d *Detection) { d.MaxVariants = 0 }},
		{"zero timeout", func(d *Detection) { d.FetchTimeout = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			det := DefaultDetection()
			tc.mutate(&det)
			if err := det.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := DefaultDetection().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
