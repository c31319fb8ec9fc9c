package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Defaults applied by ConfigFromEnv and New.
const (
	DefaultProvider       = ProviderAnthropic
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultMaxTokens      = 1024
	DefaultMaxRetries     = 2
)

// Client is a text-analysis model.
type Client interface {
	// Analyze sends the prompt and returns the raw response text. An answer
	// without text is returned as "", not as an error; errors are reserved
	// for transport failures and non-2xx responses.
	Analyze(ctx context.Context, prompt string) (string, error)
	// Provider returns the provider name, for metrics and logs.
	Provider() string
	// Model returns the model name sent to the provider.
	Model() string
}

// Config configures a model client.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	// BaseURL is the API root without the version path, e.g.
	// http://localhost:8000 for an OpenAI compatible server.
	BaseURL   string
	MaxTokens int
	// MaxRetries is how often the SDK retries 408, 409, 429 and 5xx answers.
	MaxRetries int

	// HTTPClient is used for requests. Defaults to http.DefaultClient;
	// timeouts come from the request context.
	HTTPClient *http.Client
}

// ConfigFromEnv reads LLM_PROVIDER, LLM_MODEL, LLM_BASE_URL, LLM_MAX_TOKENS,
// LLM_MAX_RETRIES and the provider's API key (ANTHROPIC_API_KEY or
// OPENAI_API_KEY).
func ConfigFromEnv() Config {
	cfg := Config{
		Provider:   strings.ToLower(getEnvOrDefault("LLM_PROVIDER", DefaultProvider)),
		Model:      os.Getenv("LLM_MODEL"),
		BaseURL:    os.Getenv("LLM_BASE_URL"),
		MaxRetries: DefaultMaxRetries,
	}
	if v, err := strconv.Atoi(os.Getenv("LLM_MAX_TOKENS")); err == nil && v > 0 {
		cfg.MaxTokens = v
	}
	if v, err := strconv.Atoi(os.Getenv("LLM_MAX_RETRIES")); err == nil && v >= 0 {
		cfg.MaxRetries = v
	}
	cfg.APIKey = apiKeyFromEnv(cfg.Provider)
	return cfg
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate checks the provider and credentials.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		// Self-hosted OpenAI compatible servers often run without a key
		if c.APIKey == "" && c.BaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("invalid LLM provider %q, must be one of: anthropic, openai", c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative, got %d", c.MaxTokens)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// New creates the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return NewAnthropicClient(cfg), nil
	}
}

// APIError is a non-2xx answer from a provider. It wraps the SDK error.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("model API returned status %d: %s", e.StatusCode, e.Message)
}

// errorMessage extracts error.message from a provider error body, falling
// back to the raw body.
func errorMessage(raw string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(raw)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
