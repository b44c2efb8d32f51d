package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "default config file should be written")
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data", "workspace"), cfg.GetWorkspaceDir())
	assert.Contains(t, cfg.GetAllowedOrigins(), "http://localhost:3000")
	assert.Contains(t, cfg.GetAudioExtensions(), ".flac")
}

func TestLoadConfig_XMLRoundTripKeepsValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")

	cfg := DefaultConfig()
	cfg.Server.Port = 9123
	cfg.Processing.AutoSaveDebounceMs = 250
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9123, loaded.Server.Port)
	assert.Equal(t, 250, loaded.Processing.AutoSaveDebounceMs)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 7001\ncover:\n  max_dimension: 640\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, 640, cfg.Cover.MaxDimension)
	// Untouched sections keep defaults
	assert.Equal(t, 1200, cfg.Downloader.MaxDurationSeconds)
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "8111")
	t.Setenv("DATA_DIR", filepath.Join(dir, "elsewhere"))
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig(filepath.Join(dir, "config.xml"))
	require.NoError(t, err)

	assert.Equal(t, 8111, cfg.Server.Port)
	assert.True(t, cfg.Advanced.DebugMode)
	assert.Equal(t, filepath.Join(dir, "elsewhere", "workspace"), cfg.GetWorkspaceDir())
	assert.Equal(t, filepath.Join(dir, "elsewhere", "history.duckdb"), cfg.Storage.HistoryDatabase)
	assert.Equal(t, filepath.Join(dir, "elsewhere", "downloads"), cfg.GetDownloadDir())
	assert.NotEqual(t, cfg.GetChunkDir(), cfg.GetDownloadDir())
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "config.xml"))
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirectories())

	for _, d := range []string{cfg.GetDataDir(), cfg.GetWorkspaceDir(), cfg.GetChunkDir(), cfg.GetDownloadDir()} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLocate_Explicit(t *testing.T) {
	assert.Equal(t, "/tmp/x.xml", Locate("/tmp/x.xml"))
	t.Setenv("CONFIG_PATH", "/tmp/env.yaml")
	assert.Equal(t, "/tmp/env.yaml", Locate(""))
}
