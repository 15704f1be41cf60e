package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the daemon runtime configuration.
type Config struct {
	ListenAddress     string `toml:"listen"`
	DatabasePath      string `toml:"database"`
	AuditDatabasePath string `toml:"audit_database"`
	LogLevel          string `toml:"log_level"`

	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Otel      OtelConfig      `toml:"otel"`

	Feeds []FeedSource `toml:"feeds"`
}

// AuthConfig gates the owner/admin RPC methods.
type AuthConfig struct {
	AdminToken string `toml:"admin_token"`
}

// RateLimitConfig tunes the per-client RPC token bucket.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	Burst             int     `toml:"burst"`
}

// OtelConfig configures trace and metric export.
type OtelConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// FeedSource describes an HTTP oracle relay to poll into the feed table.
type FeedSource struct {
	Name         string `toml:"name"`
	Endpoint     string `toml:"endpoint"`
	FeedID       string `toml:"feed_id"`
	IntervalSecs int64  `toml:"interval_secs"`
}

// DecodedFeedID parses the hex feed identifier.
func (f FeedSource) DecodedFeedID() ([32]byte, error) {
	var id [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(f.FeedID), "0x"))
	if err != nil {
		return id, fmt.Errorf("feed %q: parse feed_id: %w", f.Name, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("feed %q: feed_id must be %d bytes, got %d", f.Name, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8645"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "otcdesk.db"
	}
	if cfg.AuditDatabasePath == "" {
		cfg.AuditDatabasePath = "otcdesk-audit.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "otcdeskd"
	}
	for i := range cfg.Feeds {
		if cfg.Feeds[i].IntervalSecs <= 0 {
			cfg.Feeds[i].IntervalSecs = 30
		}
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.AdminToken) == "" {
		return fmt.Errorf("auth.admin_token must be configured")
	}
	if cfg.DatabasePath == cfg.AuditDatabasePath {
		return fmt.Errorf("database and audit_database must differ")
	}
	seen := make(map[string]struct{}, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		if strings.TrimSpace(feed.Endpoint) == "" {
			return fmt.Errorf("feed %q: endpoint required", feed.Name)
		}
		if _, err := feed.DecodedFeedID(); err != nil {
			return err
		}
		if _, dup := seen[feed.FeedID]; dup {
			return fmt.Errorf("feed %q: duplicate feed_id", feed.Name)
		}
		seen[feed.FeedID] = struct{}{}
	}
	return nil
}
