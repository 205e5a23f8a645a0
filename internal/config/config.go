package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	StoreDriver string
	SQLitePath  string
	ScanWorkers int

	LogLevel  string
	LogFormat string

	// DNSServer is an upstream resolver address (host:port). Empty uses the
	// system resolver.
	DNSServer   string
	IPInfoToken string

	Cloudflare CloudflareConfig
	Detection  Detection
}

type CloudflareConfig struct {
	AccountID string
	APIToken  string
	Email     string
}

func (c CloudflareConfig) Enabled() bool { return c.AccountID != "" && c.APIToken != "" }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:         getenv("APP_ENV", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoreDriver: getenv("STORE_DRIVER", "postgres"),
		SQLitePath:  getenv("SQLITE_PATH", "scans.db"),
		ScanWorkers: getenvInt("SCAN_WORKERS", 1),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "text"),
		DNSServer:   os.Getenv("DNS_SERVER"),
		IPInfoToken: os.Getenv("IPINFO_TOKEN"),
		Cloudflare: CloudflareConfig{
			AccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			APIToken:  os.Getenv("CLOUDFLARE_API_TOKEN"),
			Email:     os.Getenv("REPORT_EMAIL"),
		},
		Detection: DefaultDetection(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadDetectionFile(path, &cfg.Detection); err != nil {
			return cfg, err
		}
	}
	cfg.Detection.PollInterval = getenvDuration("POLL_INTERVAL", cfg.Detection.PollInterval)
	if err := cfg.Detection.Validate(); err != nil {
		return cfg, fmt.Errorf("detection config: %w", err)
	}

	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, ErrNoDatabaseURL
	}
	return cfg, nil
}

// ErrNoDatabaseURL is returned by Load when the postgres store is selected
// without a connection string.
var ErrNoDatabaseURL = errString("DATABASE_URL not set")

type errString string

func (e errString) Error() string { return string(e) }

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// loadDetectionFile overlays the YAML document at path onto det. Keys absent
// from the file keep their defaults; score_weights is merged key by key.
func loadDetectionFile(path string, det *Detection) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	doc := struct {
		Detection Detection `yaml:"detection"`
	}{Detection: *det}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	*det = doc.Detection
	return nil
}
