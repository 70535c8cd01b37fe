package llm

import (
	"fmt"
	"strings"
	"time"

	"showrunner/pkg/config"
)

// Config holds provider selection and credentials.
type Config struct {
	Provider  string
	APIKey    string
	APIURL    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// LoadConfig reads provider configuration from the environment.
func LoadConfig() Config {
	return Config{
		Provider:  strings.ToLower(config.GetEnv("LLM_PROVIDER", "openai")),
		APIKey:    config.GetEnv("LLM_API_KEY", ""),
		APIURL:    config.GetEnv("LLM_API_URL", ""),
		Model:     config.GetEnv("LLM_MODEL", ""),
		MaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 4096),
		Timeout:   config.GetEnvDuration("LLM_TIMEOUT", 60*time.Second),
	}
}

// NewProvider constructs the provider named in cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
