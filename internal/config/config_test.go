package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Relay.Key = "k1"
	cfg.Progress.PollInterval = Duration{30 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Relay.Key != "k1" {
		t.Errorf("Relay.Key = %q, want k1", loaded.Relay.Key)
	}
	if loaded.Progress.PollInterval.Duration != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", loaded.Progress.PollInterval)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("default_profile = \"main\"\n[progress]\ncheckpoints = []\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Progress.Checkpoints, DefaultCheckpoints) {
		t.Errorf("checkpoints = %v, want %v", cfg.Progress.Checkpoints, DefaultCheckpoints)
	}
	if cfg.Progress.PollInterval.Duration != 15*time.Second {
		t.Errorf("poll interval = %v, want 15s", cfg.Progress.PollInterval)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL == "" {
		t.Error("expected default API base URL")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"WORKBOOK_RELAY_KEY": " secret ",
		"WORKBOOK_TOKEN":     "tok",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Relay.Key != "secret" {
		t.Errorf("Relay.Key = %q, want secret", cfg.Relay.Key)
	}
	if cfg.API.Token != "tok" {
		t.Errorf("API.Token = %q, want tok", cfg.API.Token)
	}
}

func TestRelayEnabled(t *testing.T) {
	tests := []struct {
		name string
		key  string
		base string
		url  string
		want bool
		wurl string
	}{
		{"no key", "", "http://h:1", "", false, "ws://h:1/relay"},
		{"derived from api", "k", "http://h:1/", "", true, "ws://h:1/relay"},
		{"tls", "k", "https://h", "", true, "wss://h/relay"},
		{"explicit", "k", "", "ws://relay/x", true, "ws://relay/x"},
		{"no url at all", "k", "", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{API: APIConfig{BaseURL: tt.base}, Relay: RelayConfig{Key: tt.key, URL: tt.url}}
			if got := cfg.RelayEnabled(); got != tt.want {
				t.Errorf("RelayEnabled() = %v, want %v", got, tt.want)
			}
			if got := cfg.RelayURL(); got != tt.wurl {
				t.Errorf("RelayURL() = %q, want %q", got, tt.wurl)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
