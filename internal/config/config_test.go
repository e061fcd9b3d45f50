package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewAppConfigDefaults is a function.
func TestNewAppConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)

	cfg, err := NewAppConfig("1.2.3", "abc123", "2026-01-01", false, "/work", false, false)
	require.NoError(t, err)

	assert.Equal(t, "/mnb/run", cfg.ContainerRoot)
	assert.Equal(t, PathFlavorPOSIX, cfg.HostPathFlavor)
	assert.Equal(t, "mnb.json", cfg.UserConfig.EntryFile)
	assert.Equal(t, "latest", cfg.UserConfig.DefaultRegistryTag)
}

// TestNewAppConfigDevMode is a function.
func TestNewAppConfigDevMode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)

	cfg, err := NewAppConfig("1.2.3", "abc123", "2026-01-01", false, "/work", true, true)
	require.NoError(t, err)

	assert.Equal(t, "/work", cfg.ContainerRoot)
	assert.Equal(t, PathFlavorWindows, cfg.HostPathFlavor)
	assert.True(t, cfg.DevMode)
}

// TestNewAppConfigMergesUserFile verifies mnb.yml values on disk
// override the baked-in defaults.
func TestNewAppConfigMergesUserFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mnb.yml"), []byte("entryFile: custom.json\n"), 0o644))

	cfg, err := NewAppConfig("1.2.3", "abc123", "2026-01-01", false, "/work", false, false)
	require.NoError(t, err)

	assert.Equal(t, "custom.json", cfg.UserConfig.EntryFile)
	assert.Equal(t, "latest", cfg.UserConfig.DefaultRegistryTag)
}

// TestNewAppConfigDebugFromEnv is a function.
func TestNewAppConfigDebugFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("DEBUG", "TRUE")

	cfg, err := NewAppConfig("1.2.3", "abc123", "2026-01-01", false, "/work", false, false)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
}
