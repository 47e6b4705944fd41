package config

import "time"

// LLMConfig configures the Gemini generation and embedding models.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	GenerationModel string `yaml:"generation_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	EmbeddingDims   int    `yaml:"embedding_dims"`
	EmbedBatchSize  int    `yaml:"embed_batch_size"`  // provider cap is 100
	EmbedBatchDelay string `yaml:"embed_batch_delay"` // pause between embedding batches
	Timeout         string `yaml:"timeout"`
}

// BackoffStrategy selects how the rate-limit cooldown evolves across retries.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RateLimitConfig configures retries on HTTP 429 / RESOURCE_EXHAUSTED.
// Retries never give up; only the wait between them is configurable.
type RateLimitConfig struct {
	Cooldown    string          `yaml:"cooldown"`
	Strategy    BackoffStrategy `yaml:"strategy"`
	MaxCooldown string          `yaml:"max_cooldown"` // cap for exponential
}

// GetLLMTimeout returns the per-request timeout for model calls.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetEmbedBatchDelay returns the pause between embedding batches.
func (c *Config) GetEmbedBatchDelay() time.Duration {
	return parseDuration(c.LLM.EmbedBatchDelay, 0)
}

// GetCooldown returns the base rate-limit cooldown.
func (c *Config) GetCooldown() time.Duration {
	return parseDuration(c.RateLimit.Cooldown, 65*time.Second)
}

// GetMaxCooldown returns the cap applied to exponential cooldowns.
func (c *Config) GetMaxCooldown() time.Duration {
	return parseDuration(c.RateLimit.MaxCooldown, 10*time.Minute)
}
