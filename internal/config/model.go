package config

import (
	"fmt"
	"os"
	"time"
)

// Supported model providers.
const (
	ProviderGenAI            = "genai"
	ProviderOpenAICompatible = "openai-compatible"
)

// ModelConfig configures the hosted vision model used for metadata,
// prompts and trend lookups.
type ModelConfig struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`     // fallback when no key is stored in settings
	APIKeyEnv      string        `mapstructure:"api_key_env"` // alternative variable name for the key
	BaseURL        string        `mapstructure:"base_url"`    // openai-compatible endpoints only
	QualityModel   string        `mapstructure:"quality_model"`
	FastModel      string        `mapstructure:"fast_model"`
	FallbackModel  string        `mapstructure:"fallback_model"` // used when quality mode hits a quota
	TrendModel     string        `mapstructure:"trend_model"`
	ThinkingBudget int32         `mapstructure:"thinking_budget"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars loads the API key from APIKeyEnv when it is not set directly.
func (c *ModelConfig) ResolveEnvVars() {
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}

// Validate checks the model configuration. The API key is not required here
// because it can be supplied at runtime through the settings store.
func (c *ModelConfig) Validate() error {
	switch c.Provider {
	case ProviderGenAI:
	case ProviderOpenAICompatible:
		if c.BaseURL == "" {
			return fmt.Errorf("model: base_url is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("model: unknown provider %q", c.Provider)
	}
	if c.QualityModel == "" || c.FastModel == "" {
		return fmt.Errorf("model: quality_model and fast_model are required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("model: max_retries must not be negative")
	}
	return nil
}
