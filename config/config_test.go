package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"recipechat/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Index.Dimension != 384 {
		t.Errorf("expected Dimension=384, got %d", cfg.Index.Dimension)
	}
	if cfg.Index.NList != 128 || cfg.Index.NProbe != 16 {
		t.Errorf("expected nlist=128 nprobe=16, got %d/%d", cfg.Index.NList, cfg.Index.NProbe)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.LLM.ContextTokens != 2000 {
		t.Errorf("expected ContextTokens=2000, got %d", cfg.LLM.ContextTokens)
	}
	if cfg.Chat.FallbackReply == "" {
		t.Error("expected a default fallback reply")
	}
	if cfg.Server.RequestTimeout <= 0 || cfg.Server.RequestTimeout >= cfg.Server.WriteTimeout {
		t.Errorf("expected 0 < RequestTimeout < WriteTimeout, got %s/%s", cfg.Server.RequestTimeout, cfg.Server.WriteTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "recipechat.yaml")

	content := `
index:
  metric: euclidean
  nprobe: 4
retrieve:
  top_k: 10
  metric: euclidean
embedding:
  timeout: 5s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Index.Metric != "euclidean" {
		t.Errorf("expected Metric=euclidean, got %s", cfg.Index.Metric)
	}
	if cfg.Index.NProbe != 4 {
		t.Errorf("expected NProbe=4, got %d", cfg.Index.NProbe)
	}
	if cfg.Index.NList != 128 {
		t.Errorf("expected NList default to survive, got %d", cfg.Index.NList)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("expected Timeout=5s, got %s", cfg.Embedding.Timeout)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".recipechat"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".recipechat", "config.yaml")

	content := `
chat:
  fallback_reply: "try later"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chat.FallbackReply != "try later" {
		t.Errorf("expected FallbackReply from file, got %q", cfg.Chat.FallbackReply)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown metric", func(c *Config) { c.Index.Metric = "dot" }, "metric"},
		{"metric mismatch", func(c *Config) { c.Retrieve.Metric = "euclidean" }, "retrieve.metric"},
		{"dimension mismatch", func(c *Config) { c.Embedding.Dimension = 768 }, "embedding.dimension"},
		{"zero top_k", func(c *Config) { c.Retrieve.TopK = 0 }, "retrieve.top_k"},
		{"unknown backend", func(c *Config) { c.Index.Backend = "milvus" }, "index.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestIndexDBPath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.IndexDBPath("/home/user/project")
	expected := filepath.Join("/home/user/project", ".recipechat", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg.Index.Path = "/var/lib/recipechat/index.db"
	if got := cfg.IndexDBPath("/ignored"); got != cfg.Index.Path {
		t.Errorf("absolute path should be used as is, got %s", got)
	}
}
