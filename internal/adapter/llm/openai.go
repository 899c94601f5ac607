package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Generator = (*ChatGenerator)(nil)

// Default base URLs for the supported providers.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// Config configures a chat completion client.
type Config struct {
	Provider    string // "openai", "openrouter", "ollama"
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// ChatGenerator sends single-turn prompts to an OpenAI-compatible chat
// completions endpoint.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewChatGenerator builds a generator. The API key is read from apiKeyEnv
// when cfg.APIKey is empty; ollama does not need one.
func NewChatGenerator(apiKeyEnv string, cfg Config) (*ChatGenerator, error) {
	if cfg.APIKey == "" && apiKeyEnv != "" {
		cfg.APIKey = os.Getenv(apiKeyEnv)
	}

	baseURL := cfg.BaseURL
	switch cfg.Provider {
	case "openrouter":
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
	case "ollama":
		if baseURL == "" {
			baseURL = OllamaBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
	case "openai", "":
	default:
		return nil, &domain.ConfigurationError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Field: "llm.api_key_env", Reason: fmt.Sprintf("%s environment variable not set", apiKeyEnv)}
	}
	if cfg.Model == "" {
		return nil, &domain.ConfigurationError{Field: "llm.model", Reason: "model is required"}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &ChatGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// ModelName returns the configured chat model.
func (g *ChatGenerator) ModelName() string {
	return g.model
}

// Generate sends prompt as the user message with roleContext as the system
// message and returns the trimmed reply.
func (g *ChatGenerator) Generate(ctx context.Context, prompt, roleContext string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if roleContext != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: roleContext})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion failed (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrEmptyGeneration
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", domain.ErrEmptyGeneration
	}
	return content, nil
}
