package config

import "fmt"

// ValidateLimits checks that concurrency and loop bounds are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Poll.MaxConcurrency < 1 {
		return fmt.Errorf("%w: poll.max_concurrency must be >= 1", ErrInvalid)
	}
	if c.Workflow.MaxRewrites < 0 {
		return fmt.Errorf("%w: workflow.max_rewrites must be >= 0", ErrInvalid)
	}
	if c.Workflow.RetrievalK < 1 {
		return fmt.Errorf("%w: workflow.retrieval_k must be >= 1", ErrInvalid)
	}
	if c.LLM.EmbedBatchSize < 1 || c.LLM.EmbedBatchSize > 100 {
		return fmt.Errorf("%w: llm.embed_batch_size must be in [1, 100]", ErrInvalid)
	}
	return nil
}
