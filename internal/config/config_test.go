package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://shop.craftden.example", cfg.ServerURL)
	assert.Equal(t, []string{"home", "login", "register", "privacy"}, cfg.ExcludedViews)
	assert.Equal(t, 1*time.Second, cfg.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.PromptDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.LivenessInterval)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "cache"), cfg.CacheDir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ServerURL, cfg.ServerURL)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: http://localhost:8080
data_dir: /tmp/craftden-test
settle_delay: 50ms
excluded_views: [home, login]
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, "/tmp/craftden-test", cfg.DataDir)
	assert.Equal(t, 50*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, []string{"home", "login"}, cfg.ExcludedViews)
	assert.Equal(t, 2*time.Second, cfg.PromptDelay, "unset keys keep defaults")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://from-yaml\n"), 0600))

	t.Setenv("CRAFTDEN_SERVER_URL", "http://from-env")
	t.Setenv("CRAFTDEN_PROMPT_DELAY", "75ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.ServerURL)
	assert.Equal(t, 75*time.Millisecond, cfg.PromptDelay)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [unclosed"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	assert.Equal(t, filepath.Join("/data", "state.json"), cfg.StoreFile())
	assert.Equal(t, filepath.Join("/data", "cookies.json"), cfg.CookieFile())
}
