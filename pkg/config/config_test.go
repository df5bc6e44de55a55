package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fluxd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connect_timeout_ms: 1000\ndebug_level: 2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.ConnectTimeoutMs)
	assert.Equal(t, 2, cfg.DebugLevel)
	assert.Equal(t, Default().ConnectBackoff, cfg.ConnectBackoff)
}

func TestApplyEnvOverridesLoadedConfig(t *testing.T) {
	cfg := Default()
	t.Setenv("FLUXCORE_DEBUG_LEVEL", "3")
	t.Setenv("FLUXCORE_DATA_DIR", "/tmp/fluxd-data")
	cfg.ApplyEnv()
	assert.Equal(t, 3, cfg.DebugLevel)
	assert.Equal(t, "/tmp/fluxd-data", cfg.DataDir)
}

func TestBootstrapConnectConfigDerivesDurations(t *testing.T) {
	cfg := Default()
	bc := cfg.BootstrapConnectConfig()
	assert.Equal(t, cfg.ConnectTimeout(), bc.ConnectTimeout)
	assert.Equal(t, cfg.ConnectBackoff, bc.ConnectBackoff)
	assert.Equal(t, cfg.ConnectSleep(), bc.ConnectSleep)
	assert.Equal(t, cfg.ConnectTimeLimit(), bc.ConnectTimeLimit)
}
