// Package config loads the dataroom YAML configuration file.
//
// A missing file is not an error: Load returns the defaults. Keys absent from
// the file keep their default values, and secrets are never read from the file
// itself. API keys come from the environment variable named by ai.api_key_env,
// or the provider's conventional variable when that is empty.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/chunker"
	"github.com/poiesic/dataroom/index"
	"github.com/poiesic/dataroom/ingestion"
	"github.com/poiesic/dataroom/query"
)

const (
	// BackendBadger stores chunks in an embedded BadgerDB directory.
	BackendBadger = "badger"
	// BackendPostgres stores chunks in a PostgreSQL table with pgvector.
	BackendPostgres = "postgres"

	// DefaultPath is the BadgerDB directory used when none is configured.
	DefaultPath = "dataroom.db"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ProviderConfig configures the AI provider. It mirrors ai.Config.
type ProviderConfig struct {
	Provider          string        `yaml:"provider"`
	Host              string        `yaml:"host"`
	APIKeyEnv         string        `yaml:"api_key_env,omitempty"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	CompletionModel   string        `yaml:"completion_model"`
	Temperature       float64       `yaml:"temperature"`
	MaxOutputTokens   int           `yaml:"max_output_tokens"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	DisableEmbeddings bool          `yaml:"disable_embeddings"`
}

// ChunkingConfig configures the rune-window chunker.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures question answering.
type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	MaxSubQueries int `yaml:"max_sub_queries"`
	Workers       int `yaml:"workers"`
}

// StorageConfig selects and configures the chunk store.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	AI        ProviderConfig  `yaml:"ai"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Default returns the configuration used when no file exists.
func Default() *AppConfig {
	aiDefaults := ai.DefaultConfig()
	return &AppConfig{
		AI: ProviderConfig{
			Provider:          string(aiDefaults.Provider),
			Host:              aiDefaults.Host,
			EmbeddingModel:    aiDefaults.EmbeddingModel,
			CompletionModel:   aiDefaults.CompletionModel,
			Temperature:       aiDefaults.Temperature,
			MaxOutputTokens:   aiDefaults.MaxOutputTokens,
			RequestTimeout:    aiDefaults.RequestTimeout,
			MaxRetries:        aiDefaults.MaxRetries,
			RetryDelay:        aiDefaults.RetryDelay,
			RequestsPerSecond: aiDefaults.RequestsPerSecond,
			Burst:             aiDefaults.Burst,
		},
		Chunking:  ChunkingConfig{Size: chunker.DefaultSize, Overlap: chunker.DefaultOverlap},
		Retrieval: RetrievalConfig{TopK: index.DefaultTopK, MaxSubQueries: query.DefaultMaxSubQueries, Workers: query.DefaultWorkers},
		Storage:   StorageConfig{Backend: BackendBadger, Path: DefaultPath},
	}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults replaces values a file zeroed out where zero is never meaningful.
func applyDefaults(cfg *AppConfig) {
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = string(ai.ProviderOpenAI)
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = ai.DefaultConfig().MaxOutputTokens
	}
	if cfg.AI.RequestTimeout <= 0 {
		cfg.AI.RequestTimeout = ai.DefaultConfig().RequestTimeout
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 1
	}
	if cfg.Chunking.Size <= 0 {
		cfg.Chunking.Size = chunker.DefaultSize
	}
	if cfg.Chunking.Overlap < 0 {
		cfg.Chunking.Overlap = 0
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = index.DefaultTopK
	}
	if cfg.Retrieval.MaxSubQueries <= 0 {
		cfg.Retrieval.MaxSubQueries = query.DefaultMaxSubQueries
	}
	if cfg.Retrieval.Workers <= 0 {
		cfg.Retrieval.Workers = query.DefaultWorkers
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendBadger
	}
	if cfg.Storage.Backend == BackendBadger && cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultPath
	}
}

// Validate reports settings that cannot be used together.
func (c *AppConfig) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking.overlap (%d) must be smaller than chunking.size (%d)",
			ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.Size)
	}
	switch c.Storage.Backend {
	case BackendBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the badger backend", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig converts the ai section into an ai.Config, reading the API key
// from the environment.
func (c *AppConfig) AIConfig() *ai.Config {
	p := c.AI
	cfg := ai.NewConfig(
		ai.WithProvider(ai.ProviderType(p.Provider)),
		ai.WithHost(p.Host),
		ai.WithAPIKey(p.apiKey()),
		ai.WithEmbeddingModel(p.EmbeddingModel),
		ai.WithCompletionModel(p.CompletionModel),
		ai.WithTemperature(p.Temperature),
		ai.WithMaxOutputTokens(p.MaxOutputTokens),
		ai.WithRequestTimeout(p.RequestTimeout),
		ai.WithMaxRetries(p.MaxRetries),
		ai.WithRetryDelay(p.RetryDelay),
		ai.WithRateLimit(p.RequestsPerSecond, p.Burst),
	)
	if p.DisableEmbeddings {
		ai.WithoutEmbeddings()(cfg)
	}
	return cfg
}

func (p ProviderConfig) apiKey() string {
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	if ai.ProviderType(p.Provider) == ai.ProviderGemini {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

// IngestionOptions returns the pipeline options these settings imply.
func (c *AppConfig) IngestionOptions() []ingestion.Option {
	return []ingestion.Option{
		ingestion.WithChunking(c.Chunking.Size, c.Chunking.Overlap),
	}
}

// QueryOptions returns the query engine options these settings imply.
func (c *AppConfig) QueryOptions() []query.Option {
	return []query.Option{
		query.WithTopK(c.Retrieval.TopK),
		query.WithWorkers(c.Retrieval.Workers),
		query.WithMaxSubQueries(c.Retrieval.MaxSubQueries),
	}
}
