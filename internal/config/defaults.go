package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/clipseek/data/vectors.bin"
	}
	if cfg.Storage.MetadataDBPath == "" {
		cfg.Storage.MetadataDBPath = "/usr/local/var/clipseek/data/records.db"
	}
	if cfg.Embedding.ServiceURL == "" {
		cfg.Embedding.ServiceURL = "http://localhost:8090/embed"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Summarize.OllamaURL == "" {
		cfg.Summarize.OllamaURL = "http://localhost:11434/api/generate"
	}
	if cfg.Summarize.Model == "" {
		cfg.Summarize.Model = "llama3"
	}
	if cfg.Summarize.TimeoutSeconds == 0 {
		cfg.Summarize.TimeoutSeconds = 120
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".csv"}
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
}
