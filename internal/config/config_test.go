package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, name := range []string{
		"DATA_WRITER__BUFFER_MAX_ITEMS", "DATA_WRITER__FILE_MAX_ITEMS",
		"EXTRACT__WORKERS", "NORMALIZE__WORKERS",
		"JAFFLE_BASE_URL", "JAFFLE_DSN", "JAFFLE_DESTINATION", "JAFFLE_HTTP_TIMEOUT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, "sqlite", cfg.Destination)
	assert.Equal(t, DefaultDSN, cfg.DSN)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 20, cfg.BatchPages)
	assert.Equal(t, 3, cfg.EmptyBatchLimit)
	assert.Equal(t, 50000, cfg.BufferMaxItems)
	assert.Equal(t, 10000, cfg.FileMaxItems)
	assert.Equal(t, 8, cfg.ExtractWorkers)
	assert.GreaterOrEqual(t, cfg.NormalizeWorkers, 2)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.FullRefresh)
}

func TestFromEnv_TuningKnobs(t *testing.T) {
	t.Setenv("DATA_WRITER__BUFFER_MAX_ITEMS", "2000")
	t.Setenv("DATA_WRITER__FILE_MAX_ITEMS", "500")
	t.Setenv("EXTRACT__WORKERS", "4")
	t.Setenv("NORMALIZE__WORKERS", "3")
	t.Setenv("JAFFLE_BASE_URL", "http://localhost:8080/api/v1")
	t.Setenv("JAFFLE_HTTP_TIMEOUT", "30s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.BufferMaxItems)
	assert.Equal(t, 500, cfg.FileMaxItems)
	assert.Equal(t, 4, cfg.ExtractWorkers)
	assert.Equal(t, 3, cfg.NormalizeWorkers)
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestFromEnv_BadInteger(t *testing.T) {
	t.Setenv("EXTRACT__WORKERS", "eight")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXTRACT__WORKERS")
}

func TestApplyFile_Overlay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jaffle.yaml")
	body := "destination: postgres\ndsn: postgres://localhost/jaffle\nchunk_size: 250\nfull_refresh: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg := Default()
	require.NoError(t, cfg.ApplyFile(path))

	assert.Equal(t, "postgres", cfg.Destination)
	assert.Equal(t, "postgres://localhost/jaffle", cfg.DSN)
	assert.Equal(t, 250, cfg.ChunkSize)
	assert.True(t, cfg.FullRefresh)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
}

func TestApplyFile_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Error(t, cfg.ApplyFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestApplyFile_Malformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: [not, an, int]\n"), 0o644))

	cfg := Default()
	require.Error(t, cfg.ApplyFile(path))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, true},
		{"empty destination", func(c *Config) { c.Destination = "" }, true},
		{"empty dsn", func(c *Config) { c.DSN = "" }, true},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, true},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, true},
		{"negative workers", func(c *Config) { c.ExtractWorkers = -1 }, true},
		{"file exceeds buffer", func(c *Config) { c.BufferMaxItems = 10; c.FileMaxItems = 20 }, true},
		{"file equals buffer", func(c *Config) { c.BufferMaxItems = 10; c.FileMaxItems = 10 }, false},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
