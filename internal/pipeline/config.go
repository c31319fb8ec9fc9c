package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/teemow/inboxdigest/internal/gmail"
)

// Defaults for Config.
const (
	DefaultDays                 = 7
	DefaultMaxEmailsForModel    = 40
	DefaultMaxApproxTokenBudget = 6000
	DefaultMaxResults           = 100
	DefaultFetchConcurrency     = 8
	DefaultFetchRPS             = 10
	DefaultModelTimeout         = 60 * time.Second
)

// Config holds the tunables of a run.
type Config struct {
	// MaxEmailsForModel caps how many emails reach the prompt.
	MaxEmailsForModel int
	// MaxApproxTokenBudget caps the approximate token size of the email blocks.
	MaxApproxTokenBudget int
	// PerEmailSnippetLimit caps each snippet, in characters.
	PerEmailSnippetLimit int
	// BodyCharLimit caps body extraction, in characters.
	BodyCharLimit int
	// MaxResults caps how many message IDs are listed.
	MaxResults int
	// FetchConcurrency bounds parallel message fetches.
	FetchConcurrency int
	// FetchRPS limits message fetches per second. Zero disables the limit.
	FetchRPS float64
	// ModelTimeout bounds the model call.
	ModelTimeout time.Duration
	// ExcludeCategories are left out of Gmail listings.
	ExcludeCategories []string
}

// DefaultConfig returns a Config with defaults overridden by DIGEST_* environment variables.
func DefaultConfig() Config {
	return Config{
		MaxEmailsForModel:    getEnvIntOrDefault("DIGEST_MAX_EMAILS_FOR_MODEL", DefaultMaxEmailsForModel),
		MaxApproxTokenBudget: getEnvIntOrDefault("DIGEST_MAX_APPROX_TOKENS", DefaultMaxApproxTokenBudget),
		PerEmailSnippetLimit: getEnvIntOrDefault("DIGEST_SNIPPET_LIMIT", gmail.DefaultSnippetCharLimit),
		BodyCharLimit:        getEnvIntOrDefault("DIGEST_BODY_LIMIT", gmail.DefaultBodyCharLimit),
		MaxResults:           getEnvIntOrDefault("DIGEST_MAX_RESULTS", DefaultMaxResults),
		FetchConcurrency:     getEnvIntOrDefault("DIGEST_FETCH_CONCURRENCY", DefaultFetchConcurrency),
		FetchRPS:             getEnvFloatOrDefault("DIGEST_FETCH_RPS", DefaultFetchRPS),
		ModelTimeout:         getEnvDurationOrDefault("DIGEST_MODEL_TIMEOUT", DefaultModelTimeout),
		ExcludeCategories:    gmail.DefaultExcludedCategories,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxEmailsForModel <= 0 {
		return fmt.Errorf("max emails for model must be positive, got %d", c.MaxEmailsForModel)
	}
	if c.MaxApproxTokenBudget <= 0 {
		return fmt.Errorf("max approximate token budget must be positive, got %d", c.MaxApproxTokenBudget)
	}
	if c.PerEmailSnippetLimit <= 0 {
		return fmt.Errorf("snippet limit must be positive, got %d", c.PerEmailSnippetLimit)
	}
	if c.BodyCharLimit < 0 {
		return fmt.Errorf("body char limit must not be negative, got %d", c.BodyCharLimit)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch concurrency must be positive, got %d", c.FetchConcurrency)
	}
	if c.FetchRPS < 0 {
		return fmt.Errorf("fetch rate must not be negative, got %f", c.FetchRPS)
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("model timeout must be positive, got %s", c.ModelTimeout)
	}
	return nil
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
