package config

import "time"

const dataRoot = "/usr/local/var/coursegraph/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatasetDir == "" {
		cfg.Storage.DatasetDir = dataRoot + "/datasets"
	}
	if cfg.Storage.ShardDir == "" {
		cfg.Storage.ShardDir = dataRoot + "/shards"
	}
	if cfg.Storage.RatingsDBPath == "" {
		cfg.Storage.RatingsDBPath = dataRoot + "/db/ratings.db"
	}
	if cfg.Storage.RatingsJSONPath == "" {
		cfg.Storage.RatingsJSONPath = dataRoot + "/ratings/ratings.json"
	}
	if cfg.Ingest.ShardConcurrency == 0 {
		cfg.Ingest.ShardConcurrency = 8
	}
	if cfg.Ratings.StaleDays == 0 {
		cfg.Ratings.StaleDays = 7
	}
	if cfg.Ratings.Workers == 0 {
		cfg.Ratings.Workers = 4
	}
	if cfg.Ratings.MaxRetries == 0 {
		cfg.Ratings.MaxRetries = 3
	}
	if cfg.Ratings.BackoffBase == 0 {
		cfg.Ratings.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Ratings.RequestsPerSecond == 0 {
		cfg.Ratings.RequestsPerSecond = 2
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.DefaultLimit > cfg.Search.MaxLimit {
		cfg.Search.DefaultLimit = cfg.Search.MaxLimit
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}
