// Package config loads client configuration: defaults, then an optional
// YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the client's tunable surface.
type Config struct {
	ServerURL string `yaml:"server_url" env:"CRAFTDEN_SERVER_URL"`
	// DataDir holds the shared store file and the session cookie file.
	DataDir  string `yaml:"data_dir" env:"CRAFTDEN_DATA_DIR"`
	CacheDir string `yaml:"cache_dir" env:"CRAFTDEN_CACHE_DIR"`

	// ExcludedViews never show the consent prompt: entry, auth flows and
	// the policy page itself.
	ExcludedViews []string `yaml:"excluded_views" env:"CRAFTDEN_EXCLUDED_VIEWS"`

	SettleDelay      time.Duration `yaml:"settle_delay" env:"CRAFTDEN_SETTLE_DELAY"`
	PromptDelay      time.Duration `yaml:"prompt_delay" env:"CRAFTDEN_PROMPT_DELAY"`
	LivenessInterval time.Duration `yaml:"liveness_interval" env:"CRAFTDEN_LIVENESS_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerURL:        "https://shop.craftden.example",
		ExcludedViews:    []string{"home", "login", "register", "privacy"},
		SettleDelay:      1 * time.Second,
		PromptDelay:      2 * time.Second,
		LivenessInterval: 500 * time.Millisecond,
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// it exists) and environment variables, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// missing config file is fine, defaults apply
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".craftden")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}

	return cfg, nil
}

// StoreFile is the shared persistent store path.
func (c Config) StoreFile() string {
	return filepath.Join(c.DataDir, "state.json")
}

// CookieFile is the session cookie jar path.
func (c Config) CookieFile() string {
	return filepath.Join(c.DataDir, "cookies.json")
}
