// Package config loads the archiver's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds process-level settings. Flags override file values; the file
// is optional.
type Config struct {
	Domain         string `json:"domain"`          // e.g. https://example.com
	DataDir        string `json:"data_dir"`        // database and index location
	PageSize       int    `json:"page_size"`       // items per source page
	Concurrency    int    `json:"concurrency"`     // worker pool size
	RequestTimeout int    `json:"request_timeout"` // seconds per remote request
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DataDir:        "./data",
		PageSize:       100,
		Concurrency:    5,
		RequestTimeout: 30,
	}
}

// Load reads path and merges it over the defaults. A missing file is not an
// error; everything simply stays at its default.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = Default().PageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = Default().Concurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = Default().RequestTimeout
	}
	return cfg, nil
}
