package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"domain": "https://example.com",
		"page_size": 50
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.Domain)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, Default().Concurrency, cfg.Concurrency)
	assert.Equal(t, Default().DataDir, cfg.DataDir)
}

func TestLoad_RejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_NonPositiveValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"page_size": 0,
		"concurrency": -1,
		"request_timeout": 0
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().PageSize, cfg.PageSize)
	assert.Equal(t, Default().Concurrency, cfg.Concurrency)
	assert.Equal(t, Default().RequestTimeout, cfg.RequestTimeout)
}
