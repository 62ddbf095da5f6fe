package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr: "0.0.0.0:9000"
db_path: "/tmp/test.db"
encryption_key: "file-key"
refresh_skew: "90s"
google:
  client_id: "cid"
  client_secret: "secret"
  redirect_url: "https://example.com/oauth2callback"
poll:
  enabled: true
  interval: "30s"
link:
  state_max_age: "5m"
`)

	t.Setenv("MAILSYNC_LISTEN_ADDR", "")
	t.Setenv("MAILSYNC_ENCRYPTION_KEY", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("listen addr: got %q", cfg.ListenAddr)
	}
	if !cfg.PollEnabled || cfg.PollInterval != 30*time.Second {
		t.Fatalf("poll settings: enabled=%v interval=%s", cfg.PollEnabled, cfg.PollInterval)
	}
	if cfg.StateMaxAge != 5*time.Minute {
		t.Fatalf("state max age: got %s", cfg.StateMaxAge)
	}
	if cfg.RefreshSkew != 90*time.Second {
		t.Fatalf("refresh skew: got %s", cfg.RefreshSkew)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
encryption_key: "file-key"
google:
  client_id: "file-cid"
  redirect_url: "https://example.com/oauth2callback"
`)
	t.Setenv("GOOGLE_CLIENT_ID", "env-cid")
	t.Setenv("MAILSYNC_ENCRYPTION_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GoogleClientID != "env-cid" {
		t.Fatalf("expected env override, got %q", cfg.GoogleClientID)
	}
	if cfg.EncryptionKey != "env-key" {
		t.Fatalf("expected env encryption key, got %q", cfg.EncryptionKey)
	}
}

func TestMissingEncryptionKey(t *testing.T) {
	path := writeConfigFile(t, `
google:
  client_id: "cid"
  redirect_url: "https://example.com/oauth2callback"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing encryption key")
	}
}

func TestInvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `
encryption_key: "k"
google:
  client_id: "cid"
  redirect_url: "https://example.com/oauth2callback"
poll:
  interval: "soon"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable interval")
	}
}
