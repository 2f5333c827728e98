package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensaku/data/db/search.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kensaku/data/indices/bleve"
	}
	if cfg.Search.SourceHandler == "" {
		cfg.Search.SourceHandler = "default"
	}
	if cfg.Search.MinWordLength == 0 {
		cfg.Search.MinWordLength = 4
	}
	if cfg.Search.DefaultMaxResults == 0 {
		cfg.Search.DefaultMaxResults = 100
	}
	if cfg.Search.BulkFlushBytes == 0 {
		cfg.Search.BulkFlushBytes = 500000
	}
	if cfg.Search.GroupPageSize == 0 {
		cfg.Search.GroupPageSize = 200
	}
	if cfg.Import.Extensions == nil {
		cfg.Import.Extensions = []string{".jsonl", ".json"}
	}
}
