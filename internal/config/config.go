// Package config loads service configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr   = "127.0.0.1:8086"
	defaultDBPath       = "mailsync.db"
	defaultPollInterval = 5 * time.Minute
	defaultStateMaxAge  = 15 * time.Minute
	defaultRefreshSkew  = 2 * time.Minute
)

type fileConfig struct {
	ListenAddr    string       `yaml:"listen_addr"`
	DBPath        string       `yaml:"db_path"`
	EncryptionKey string       `yaml:"encryption_key"`
	Google        googleConfig `yaml:"google"`
	Poll          pollConfig   `yaml:"poll"`
	Link          linkConfig   `yaml:"link"`
	RefreshSkew   string       `yaml:"refresh_skew"`
}

type googleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type pollConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

type linkConfig struct {
	StateMaxAge string `yaml:"state_max_age"`
}

// Config is the resolved runtime configuration.
type Config struct {
	ListenAddr    string
	DBPath        string
	EncryptionKey string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	PollEnabled  bool
	PollInterval time.Duration
	StateMaxAge  time.Duration
	RefreshSkew  time.Duration
}

// Load reads the YAML file at path (optional; pass "" to rely on env and
// defaults), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg := &Config{
		ListenAddr:         firstNonEmpty(os.Getenv("MAILSYNC_LISTEN_ADDR"), fc.ListenAddr, defaultListenAddr),
		DBPath:             firstNonEmpty(os.Getenv("MAILSYNC_DB_PATH"), fc.DBPath, defaultDBPath),
		EncryptionKey:      firstNonEmpty(os.Getenv("MAILSYNC_ENCRYPTION_KEY"), fc.EncryptionKey),
		GoogleClientID:     firstNonEmpty(os.Getenv("GOOGLE_CLIENT_ID"), fc.Google.ClientID),
		GoogleClientSecret: firstNonEmpty(os.Getenv("GOOGLE_CLIENT_SECRET"), fc.Google.ClientSecret),
		GoogleRedirectURL:  firstNonEmpty(os.Getenv("GOOGLE_REDIRECT_URI"), fc.Google.RedirectURL),
		PollEnabled:        fc.Poll.Enabled || os.Getenv("MAILSYNC_POLL_ENABLED") == "true",
		PollInterval:       defaultPollInterval,
		StateMaxAge:        defaultStateMaxAge,
		RefreshSkew:        defaultRefreshSkew,
	}

	var err error
	if cfg.PollInterval, err = parseDuration(fc.Poll.Interval, defaultPollInterval); err != nil {
		return nil, fmt.Errorf("config: poll.interval: %w", err)
	}
	if cfg.StateMaxAge, err = parseDuration(fc.Link.StateMaxAge, defaultStateMaxAge); err != nil {
		return nil, fmt.Errorf("config: link.state_max_age: %w", err)
	}
	if cfg.RefreshSkew, err = parseDuration(fc.RefreshSkew, defaultRefreshSkew); err != nil {
		return nil, fmt.Errorf("config: refresh_skew: %w", err)
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("config: encryption key is required (MAILSYNC_ENCRYPTION_KEY)")
	}
	if cfg.GoogleClientID == "" || cfg.GoogleRedirectURL == "" {
		return nil, fmt.Errorf("config: google client_id and redirect_url are required")
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
