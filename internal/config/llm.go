package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvLLMProvider    = "LEXGRAPH_LLM_PROVIDER"
	EnvLLMModel       = "LEXGRAPH_LLM_MODEL"
	EnvLLMAPIKey      = "LEXGRAPH_LLM_API_KEY"
	EnvLLMTemperature = "LEXGRAPH_LLM_TEMPERATURE"
	EnvLLMMaxTokens   = "LEXGRAPH_LLM_MAX_TOKENS"
	EnvLLMMaxRetries  = "LEXGRAPH_LLM_MAX_RETRIES"
)

// LLM providers. ProviderNone runs the pipeline without a model: intake
// needs a declared document type and drafting steps fail.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// providerKeyEnv names the provider's own API key variable, consulted when
// no key is configured.
var providerKeyEnv = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
}

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderOpenAI:    "gpt-4o",
	ProviderGoogle:    "gemini-2.0-flash",
}

// LLMConfig selects the chat model behind the pipeline's steps.
type LLMConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	Temperature *float64 `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	MaxRetries  int      `toml:"max_retries"`
}

// TemperatureValue returns the configured temperature.
func (c *LLMConfig) TemperatureValue() float64 {
	if c.Temperature == nil {
		return 0
	}
	return *c.Temperature
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *LLMConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *LLMConfig) Merge(overlay *LLMConfig) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Temperature != nil {
		t := *overlay.Temperature
		c.Temperature = &t
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
}

func (c *LLMConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderNone
	}
	if c.Temperature == nil {
		t := 0.2
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *LLMConfig) loadEnv() {
	if v := os.Getenv(EnvLLMProvider); v != "" {
		c.Provider = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvLLMTemperature); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = &t
		}
	}
	if v := os.Getenv(EnvLLMMaxTokens); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = n
		}
	}
	if v := os.Getenv(EnvLLMMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}

	// Provider-specific fallbacks come last so they never mask an explicit
	// choice.
	if c.APIKey == "" {
		if name, ok := providerKeyEnv[c.Provider]; ok {
			c.APIKey = os.Getenv(name)
		}
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
}

func (c *LLMConfig) validate() error {
	switch c.Provider {
	case ProviderNone:
		return nil
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %s (set %s or %s)",
			c.Provider, EnvLLMAPIKey, providerKeyEnv[c.Provider])
	}
	if t := c.TemperatureValue(); t < 0 || t > 2 {
		return fmt.Errorf("invalid temperature: %v", t)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("invalid max_tokens: %d", c.MaxTokens)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid max_retries: %d", c.MaxRetries)
	}
	return nil
}
