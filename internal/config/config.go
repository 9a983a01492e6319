// Package config builds the explicit pipeline configuration.
//
// The original tuning surface was process-global (environment variables mutated
// before library invocation). Here it is an explicit Config struct passed by
// value to the runner, so nothing downstream depends on hidden global state.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults matching the original pipeline constants.
const (
	DefaultBaseURL  = "https://jaffle-shop.scalevector.ai/api/v1"
	DefaultDSN      = "jaffle_shop.db"
	DefaultPageSize = 100

	defaultChunkSize       = 1000
	defaultThreads         = 8
	defaultBatchPages      = 20
	defaultEmptyBatchLimit = 3
	defaultBufferMaxItems  = 50000
	defaultFileMaxItems    = 10000
	defaultHTTPTimeout     = 10 * time.Second
)

// Config is the complete tuning surface of a pipeline run.
type Config struct {
	// BaseURL is the API root; per-endpoint paths are appended to it.
	BaseURL string `yaml:"base_url"`
	// Destination selects the storage backend kind (sqlite, postgres, mssql).
	Destination string `yaml:"destination"`
	// DSN is passed through to the destination backend.
	DSN string `yaml:"dsn"`

	// PageSize is the per_page query parameter value.
	PageSize int `yaml:"page_size"`
	// ChunkSize bounds how many records accumulate before a chunk is emitted.
	ChunkSize int `yaml:"chunk_size"`
	// BatchPages is how many pages are fetched concurrently per batch.
	BatchPages int `yaml:"batch_pages"`
	// EmptyBatchLimit is how many consecutive all-empty batches end pagination.
	EmptyBatchLimit int `yaml:"empty_batch_limit"`

	// ExtractWorkers is the fetch worker count (EXTRACT__WORKERS).
	ExtractWorkers int `yaml:"extract_workers"`
	// NormalizeWorkers is the normalization worker count (NORMALIZE__WORKERS).
	NormalizeWorkers int `yaml:"normalize_workers"`

	// BufferMaxItems bounds in-memory row buffering before a flush to the
	// destination (DATA_WRITER__BUFFER_MAX_ITEMS).
	BufferMaxItems int `yaml:"buffer_max_items"`
	// FileMaxItems bounds the rows handed to the destination per write call
	// (DATA_WRITER__FILE_MAX_ITEMS).
	FileMaxItems int `yaml:"file_max_items"`

	// HTTPTimeout is the per-request timeout on outbound API calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// FullRefresh discards all previously loaded state before re-extracting.
	FullRefresh bool `yaml:"full_refresh"`
}

// Default returns the configuration the original pipeline hardcoded.
func Default() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Destination:      "sqlite",
		DSN:              DefaultDSN,
		PageSize:         DefaultPageSize,
		ChunkSize:        defaultChunkSize,
		BatchPages:       defaultBatchPages,
		EmptyBatchLimit:  defaultEmptyBatchLimit,
		ExtractWorkers:   defaultThreads,
		NormalizeWorkers: maxInt(2, runtime.NumCPU()),
		BufferMaxItems:   defaultBufferMaxItems,
		FileMaxItems:     defaultFileMaxItems,
		HTTPTimeout:      defaultHTTPTimeout,
	}
}

// FromEnv builds a Config from defaults overlaid with environment variables.
//
// Recognized variables (all optional):
//   - DATA_WRITER__BUFFER_MAX_ITEMS, DATA_WRITER__FILE_MAX_ITEMS
//   - EXTRACT__WORKERS, NORMALIZE__WORKERS
//   - JAFFLE_BASE_URL, JAFFLE_DSN, JAFFLE_DESTINATION, JAFFLE_HTTP_TIMEOUT
//
// Errors:
//   - Returns an error for unparseable values; absence is never an error.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("JAFFLE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("JAFFLE_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("JAFFLE_DESTINATION"); v != "" {
		cfg.Destination = v
	}

	intVars := []struct {
		name string
		dst  *int
	}{
		{"DATA_WRITER__BUFFER_MAX_ITEMS", &cfg.BufferMaxItems},
		{"DATA_WRITER__FILE_MAX_ITEMS", &cfg.FileMaxItems},
		{"EXTRACT__WORKERS", &cfg.ExtractWorkers},
		{"NORMALIZE__WORKERS", &cfg.NormalizeWorkers},
	}
	for _, ev := range intVars {
		v := os.Getenv(ev.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: %s=%q is not an integer: %w", ev.name, v, err)
		}
		*ev.dst = n
	}

	if v := os.Getenv("JAFFLE_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: JAFFLE_HTTP_TIMEOUT=%q: %w", v, err)
		}
		cfg.HTTPTimeout = d
	}

	return cfg, cfg.Validate()
}

// ApplyFile overlays values from an optional YAML file onto the config.
// Zero values in the file leave the existing setting untouched.
func (c *Config) ApplyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var over Config
	if err := yaml.Unmarshal(b, &over); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if over.BaseURL != "" {
		c.BaseURL = over.BaseURL
	}
	if over.Destination != "" {
		c.Destination = over.Destination
	}
	if over.DSN != "" {
		c.DSN = over.DSN
	}
	if over.PageSize > 0 {
		c.PageSize = over.PageSize
	}
	if over.ChunkSize > 0 {
		c.ChunkSize = over.ChunkSize
	}
	if over.BatchPages > 0 {
		c.BatchPages = over.BatchPages
	}
	if over.EmptyBatchLimit > 0 {
		c.EmptyBatchLimit = over.EmptyBatchLimit
	}
	if over.ExtractWorkers > 0 {
		c.ExtractWorkers = over.ExtractWorkers
	}
	if over.NormalizeWorkers > 0 {
		c.NormalizeWorkers = over.NormalizeWorkers
	}
	if over.BufferMaxItems > 0 {
		c.BufferMaxItems = over.BufferMaxItems
	}
	if over.FileMaxItems > 0 {
		c.FileMaxItems = over.FileMaxItems
	}
	if over.HTTPTimeout > 0 {
		c.HTTPTimeout = over.HTTPTimeout
	}
	if over.FullRefresh {
		c.FullRefresh = true
	}

	return c.Validate()
}

// Validate checks invariants the runner relies on.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("config: base_url must be set")
	}
	if c.Destination == "" {
		return fmt.Errorf("config: destination must be set")
	}
	if c.DSN == "" {
		return fmt.Errorf("config: dsn must be set")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be > 0")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be > 0")
	}
	if c.BatchPages <= 0 {
		return fmt.Errorf("config: batch_pages must be > 0")
	}
	if c.EmptyBatchLimit <= 0 {
		return fmt.Errorf("config: empty_batch_limit must be > 0")
	}
	if c.ExtractWorkers <= 0 {
		return fmt.Errorf("config: extract_workers must be > 0")
	}
	if c.NormalizeWorkers <= 0 {
		return fmt.Errorf("config: normalize_workers must be > 0")
	}
	if c.BufferMaxItems <= 0 {
		return fmt.Errorf("config: buffer_max_items must be > 0")
	}
	if c.FileMaxItems <= 0 {
		return fmt.Errorf("config: file_max_items must be > 0")
	}
	if c.FileMaxItems > c.BufferMaxItems {
		return fmt.Errorf("config: file_max_items must not exceed buffer_max_items")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http_timeout must be > 0")
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
