// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (RAGBOT_* prefix, runtime override)
//  2. Config file (config.yaml in the working directory or an explicit path)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidAddr indicates the listen address is empty or malformed.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidStoragePath indicates the sqlite path or index dir is empty.
	ErrInvalidStoragePath = errors.New("invalid storage path")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidConcurrency indicates the turn worker bound is non-positive.
	ErrInvalidConcurrency = errors.New("invalid max concurrent turns")
)

// Default configuration values.
const (
	DefaultAddr = "127.0.0.1:8001"

	DefaultSQLitePath = "ragbot.sqlite"
	DefaultIndexDir   = "index_db"

	DefaultModelName     = "googleai/gemini-2.5-flash-lite"
	DefaultEmbedderModel = "text-embedding-004"

	DefaultTopK               = 3
	DefaultChunkSize          = 1000
	DefaultChunkOverlap       = 200
	DefaultMaxDocumentBytes   = 10 << 20 // 10 MB
	DefaultMaxConcurrentTurns = 8
)

// Config stores application configuration.
type Config struct {
	// Server configuration
	Addr string `mapstructure:"addr"`

	// Storage configuration
	SQLitePath string `mapstructure:"sqlite_path"`
	IndexDir   string `mapstructure:"index_dir"`

	// AI configuration
	ModelName          string `mapstructure:"model_name"`
	EmbedderModel      string `mapstructure:"embedder_model"`
	TopK               int    `mapstructure:"top_k"`
	MaxConcurrentTurns int    `mapstructure:"max_concurrent_turns"`

	// Ingestion configuration
	ChunkSize        int   `mapstructure:"chunk_size"`
	ChunkOverlap     int   `mapstructure:"chunk_overlap"`
	MaxDocumentBytes int64 `mapstructure:"max_document_bytes"`

	// DefaultURL, when set, is ingested into every new session in the
	// background so fresh sessions start with a seed corpus.
	DefaultURL string `mapstructure:"default_url"`

	// Observability configuration. OTLPEndpoint empty disables trace
	// export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
// path may be empty, in which case only the working directory is searched
// and a missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RAGBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing config file is fine, defaults and env apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", DefaultAddr)

	v.SetDefault("sqlite_path", DefaultSQLitePath)
	v.SetDefault("index_dir", DefaultIndexDir)

	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("max_concurrent_turns", DefaultMaxConcurrentTurns)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("max_document_bytes", DefaultMaxDocumentBytes)

	v.SetDefault("default_url", "")

	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("environment", "dev")
}

// Validate checks the configuration for invalid values (fail-fast).
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return ErrInvalidAddr
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("%w: sqlite_path is empty", ErrInvalidStoragePath)
	}
	if strings.TrimSpace(c.IndexDir) == "" {
		return fmt.Errorf("%w: index_dir is empty", ErrInvalidStoragePath)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return ErrInvalidModelName
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return ErrInvalidEmbedderModel
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidTopK, c.TopK)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.MaxDocumentBytes < 1 {
		return fmt.Errorf("%w: max_document_bytes %d", ErrInvalidChunking, c.MaxDocumentBytes)
	}
	if c.MaxConcurrentTurns < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.MaxConcurrentTurns)
	}
	return nil
}
