// Package config provides configuration loading and structs for the coursegraph server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Ratings RatingsConfig `yaml:"ratings"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for datasets, shard output, the rating cache and indices.
type StorageConfig struct {
	// DatasetDir holds canonical <year>_<term>_final.json datasets.
	DatasetDir string `yaml:"dataset_dir"`
	// ShardDir holds raw collection output, one subdirectory per term.
	ShardDir        string `yaml:"shard_dir"`
	RatingsDBPath   string `yaml:"ratings_db_path"`
	RatingsJSONPath string `yaml:"ratings_json_path"`
	// BleveIndexPath, when set, keeps text indexes on disk; empty means in memory.
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// IngestConfig holds shard pipeline settings.
type IngestConfig struct {
	ShardConcurrency int `yaml:"shard_concurrency"`
}

// RatingsConfig holds rating refresh settings.
type RatingsConfig struct {
	StaleDays         int           `yaml:"stale_days"`
	Workers           int           `yaml:"workers"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// StaleAfter returns StaleDays as a duration.
func (r *RatingsConfig) StaleAfter() time.Duration {
	return time.Duration(r.StaleDays) * 24 * time.Hour
}

// SearchConfig holds paging settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// WatchConfig holds dataset directory watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	for _, p := range []*string{
		&cfg.Storage.DatasetDir,
		&cfg.Storage.ShardDir,
		&cfg.Storage.RatingsDBPath,
		&cfg.Storage.RatingsJSONPath,
		&cfg.Storage.BleveIndexPath,
	} {
		*p = expandPath(*p, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
