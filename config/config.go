package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"recipechat/internal/domain"
)

// Config holds all configuration for the recipe assistant.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Chat      ChatConfig      `yaml:"chat"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	Backend   string `yaml:"backend"` // "bolt" or "postgres"
	Path      string `yaml:"path"`    // bolt file, relative to the root directory
	Metric    string `yaml:"metric"`  // "cosine" or "euclidean"
	Dimension int    `yaml:"dimension"`
	NList     int    `yaml:"nlist"`  // number of IVF partitions
	NProbe    int    `yaml:"nprobe"` // partitions scanned per query
	DSN       string `yaml:"dsn"`    // postgres connection string
	DSNEnv    string `yaml:"dsn_env"`
	Table     string `yaml:"table"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "openai", "ollama", "hash"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimension         int           `yaml:"dimension"`
	BatchSize         int           `yaml:"batch_size"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	CacheSize         int           `yaml:"cache_size"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// LLMConfig holds text-generation backend configuration.
type LLMConfig struct {
	Provider      string        `yaml:"provider"` // "openai", "openrouter", "ollama"
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Temperature   float32       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	ContextTokens int           `yaml:"context_tokens"` // budget for retrieved recipe text
	Timeout       time.Duration `yaml:"timeout"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK   int    `yaml:"top_k"`
	Metric string `yaml:"metric"`
}

// IngestConfig holds corpus ingestion configuration.
type IngestConfig struct {
	Corpus       string   `yaml:"corpus"`
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	BatchSize    int      `yaml:"batch_size"`
	Workers      int      `yaml:"workers"`
	DropExisting bool     `yaml:"drop_existing"`
}

// ChatConfig holds conversation pipeline messages.
type ChatConfig struct {
	Greeting      string `yaml:"greeting"`
	FallbackReply string `yaml:"fallback_reply"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RequestTimeout bounds one chat message end to end; the pipeline answers
	// with the fallback reply when it expires.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Backend:   "bolt",
			Path:      filepath.Join(".recipechat", "index.db"),
			Metric:    "cosine",
			Dimension: domain.EmbeddingDimension,
			NList:     128,
			NProbe:    16,
			DSNEnv:    "DATABASE_URL",
			Table:     "recipes",
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "all-minilm",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: domain.EmbeddingDimension,
			BatchSize: 100,
			MaxTokens: 256,
			Timeout:   30 * time.Second,
			CacheSize: 512,
			CacheTTL:  10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:      "openrouter",
			Model:         "openai/gpt-4o-mini",
			APIKeyEnv:     "OPEN_ROUTER_API",
			Temperature:   0.2,
			MaxTokens:     800,
			ContextTokens: 2000,
			Timeout:       60 * time.Second,
		},
		Retrieve: RetrieveConfig{
			TopK:   5,
			Metric: "cosine",
		},
		Ingest: IngestConfig{
			Corpus:    "recipes",
			Includes:  []string{"**/*.json", "**/*.jsonl", "**/*.yaml", "**/*.yml"},
			Excludes:  []string{"**/.git/**", "**/node_modules/**"},
			BatchSize: 500,
			Workers:   4,
		},
		Chat: ChatConfig{
			Greeting:      "Hi! How can I help you today?",
			FallbackReply: "Sorry! Please try again later.",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			// below WriteTimeout so the fallback reply still gets written
			RequestTimeout: 75 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (recipechat.yaml, then
// .recipechat/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "recipechat.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".recipechat", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks settings that would otherwise surface as runtime
// mismatches between the index and the embedder.
func (c *Config) Validate() error {
	indexMetric, err := domain.ParseMetric(c.Index.Metric)
	if err != nil {
		return err
	}
	retrieveMetric, err := domain.ParseMetric(c.Retrieve.Metric)
	if err != nil {
		return err
	}
	if indexMetric != retrieveMetric {
		return &domain.ConfigurationError{
			Field:  "retrieve.metric",
			Reason: fmt.Sprintf("%s does not match index metric %s", retrieveMetric, indexMetric),
		}
	}
	if c.Index.Dimension <= 0 {
		return &domain.ConfigurationError{Field: "index.dimension", Reason: "must be positive"}
	}
	if c.Embedding.Dimension != c.Index.Dimension {
		return &domain.ConfigurationError{
			Field:  "embedding.dimension",
			Reason: fmt.Sprintf("%d does not match index dimension %d", c.Embedding.Dimension, c.Index.Dimension),
		}
	}
	if c.Retrieve.TopK <= 0 {
		return &domain.ConfigurationError{Field: "retrieve.top_k", Reason: "must be positive"}
	}
	switch c.Index.Backend {
	case "bolt", "postgres":
	default:
		return &domain.ConfigurationError{Field: "index.backend", Reason: fmt.Sprintf("unsupported backend %q", c.Index.Backend)}
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		return &domain.ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unsupported provider %q", c.Embedding.Provider)}
	}
	return nil
}

// IndexDBPath returns the path to the bolt index under dir.
func (c *Config) IndexDBPath(dir string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(dir, c.Index.Path)
}

// EnsureIndexDir creates the directory holding the bolt index.
func (c *Config) EnsureIndexDir(dir string) error {
	return os.MkdirAll(filepath.Dir(c.IndexDBPath(dir)), 0755)
}

// PostgresDSN returns the configured DSN, falling back to the DSN env var.
func (c *Config) PostgresDSN() string {
	if c.Index.DSN != "" {
		return c.Index.DSN
	}
	if c.Index.DSNEnv != "" {
		return os.Getenv(c.Index.DSNEnv)
	}
	return ""
}
