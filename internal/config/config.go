// Package config loads and saves agentsync configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all agentsync configuration.
type Config struct {
	General  GeneralConfig          `toml:"general"`
	Endpoint EndpointConfig         `toml:"endpoint"`
	Agents   map[string]AgentConfig `toml:"agents"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	// DataDir is where queues and checkpoints live. Defaults to the XDG
	// data dir.
	DataDir string `toml:"data_dir,omitempty"`
	// DefaultAgent is the agent processed when none is specified.
	DefaultAgent string `toml:"default_agent"`
	// MaxAgeDays bounds session discovery.
	MaxAgeDays int `toml:"max_age_days"`
}

// EndpointConfig holds remote metrics endpoint settings.
type EndpointConfig struct {
	URL         string `toml:"url,omitempty"`
	Token       string `toml:"token,omitempty"`
	MaxAttempts int    `toml:"max_attempts"`
	DryRun      bool   `toml:"dry_run"`
}

// AgentConfig holds one agent's transcript storage settings. The storage
// root and its version markers belong to the upstream tool; agentsync only
// ever reads them.
type AgentConfig struct {
	StorageDir string `toml:"storage_dir,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		General: GeneralConfig{
			DefaultAgent: "opencode",
			MaxAgeDays:   30,
		},
		Endpoint: EndpointConfig{
			MaxAttempts: 3,
		},
		Agents: map[string]AgentConfig{
			"opencode": {StorageDir: filepath.Join(home, ".local", "share", "opencode", "storage")},
			"claude":   {StorageDir: filepath.Join(home, ".claude")},
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agentsync")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the state directory for queues and checkpoints, honoring
// the config override.
func DataDir(cfg Config) string {
	if cfg.General.DataDir != "" {
		return cfg.General.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "agentsync")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// GetToken returns the endpoint token from env var or config, in that order.
// The token is handed to the HTTP client opaquely.
func GetToken(cfg Config) string {
	if key := os.Getenv("AGENTSYNC_TOKEN"); key != "" {
		return key
	}
	return cfg.Endpoint.Token
}

// GetEndpointURL returns the endpoint URL from env var or config.
func GetEndpointURL(cfg Config) string {
	if url := os.Getenv("AGENTSYNC_ENDPOINT"); url != "" {
		return url
	}
	return cfg.Endpoint.URL
}
