package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultCheckpoints are the course pages that require a photo upload.
var DefaultCheckpoints = []int{7, 15, 20, 29, 35, 40, 49}

// Config represents the global ~/.workbook/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	API      APIConfig      `toml:"api"`
	Relay    RelayConfig    `toml:"relay"`
	Progress ProgressConfig `toml:"progress"`
	Daemon   DaemonConfig   `toml:"daemon"`
}

// APIConfig points clients at the content backend.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// RelayConfig holds event relay credentials. An empty key disables live updates.
type RelayConfig struct {
	URL     string `toml:"url"`
	Key     string `toml:"key"`
	Cluster string `toml:"cluster"`
}

// ProgressConfig tunes checkpoint tracking.
type ProgressConfig struct {
	Checkpoints  []int    `toml:"checkpoints"`
	PollInterval Duration `toml:"poll_interval"`
	Gating       bool     `toml:"gating"`
}

// DaemonConfig configures workbookd.
type DaemonConfig struct {
	Listen    string `toml:"listen"`
	UploadDir string `toml:"upload_dir"`
	PublicURL string `toml:"public_url"`
}

// Duration decodes TOML strings like "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every field populated.
func Default() *Config {
	return &Config{
		API: APIConfig{BaseURL: "http://127.0.0.1:8740"},
		Progress: ProgressConfig{
			Checkpoints:  append([]int(nil), DefaultCheckpoints...),
			PollInterval: Duration{15 * time.Second},
		},
		Daemon: DaemonConfig{Listen: "127.0.0.1:8740"},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.fill()
	return cfg, nil
}

// LoadOrDefault is Load that falls back to Default when the file is absent.
// Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides relay and API settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Relay.Key, "WORKBOOK_RELAY_KEY")
	set(&c.Relay.Cluster, "WORKBOOK_RELAY_CLUSTER")
	set(&c.Relay.URL, "WORKBOOK_RELAY_URL")
	set(&c.API.Token, "WORKBOOK_TOKEN")
	set(&c.API.BaseURL, "WORKBOOK_API_URL")
}

// RelayEnabled reports whether live updates are configured.
func (c *Config) RelayEnabled() bool {
	return c.Relay.Key != "" && c.RelayURL() != ""
}

// RelayURL returns the relay websocket URL. Without an explicit URL the
// relay is assumed to live on the API host.
func (c *Config) RelayURL() string {
	if c.Relay.URL != "" {
		return c.Relay.URL
	}
	base := strings.TrimRight(c.API.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/relay"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/relay"
	}
	return ""
}

func (c *Config) fill() {
	if len(c.Progress.Checkpoints) == 0 {
		c.Progress.Checkpoints = append([]int(nil), DefaultCheckpoints...)
	}
	if c.Progress.PollInterval.Duration <= 0 {
		c.Progress.PollInterval = Duration{15 * time.Second}
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
