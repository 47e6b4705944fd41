// Package perception adapts the generation model behind types.LLMClient.
package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"replydesk/internal/logging"
	"replydesk/internal/retry"
	"replydesk/internal/types"
)

// generateAPI is the slice of genai.Models the client uses.
type generateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig holds configuration for the Gemini generation client.
type GeminiConfig struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	Timeout      time.Duration // per attempt; cooldowns between attempts are not covered
	Retry        retry.Policy
	Logger       *zap.Logger
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:       "gemini-2.5-flash",
		Temperature: 0.2,
		Timeout:     2 * time.Minute,
	}
}

// GeminiClient implements types.LLMClient for Google Gemini.
type GeminiClient struct {
	api    generateAPI
	cfg    GeminiConfig
	logger *zap.Logger
}

var _ types.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient creates a client over an existing genai client.
func NewGeminiClient(client *genai.Client, cfg GeminiConfig) (*GeminiClient, error) {
	if client == nil {
		return nil, fmt.Errorf("GenAI client is required")
	}
	return newGeminiClient(client.Models, cfg), nil
}

func newGeminiClient(api generateAPI, cfg GeminiConfig) *GeminiClient {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultGeminiConfig().Model
	}
	logger := logging.For(cfg.Logger, logging.CategoryAPI)
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &GeminiClient{api: api, cfg: cfg, logger: logger}
}

// Model returns the generation model name.
func (c *GeminiClient) Model() string {
	return c.cfg.Model
}

// Complete sends a single-turn prompt and returns the trimmed text of the
// first candidate. Rate limits are retried with the same prompt for as long
// as ctx allows; Timeout bounds each request, not the wait between them.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()
	c.logger.Debug("Complete", zap.String("model", c.cfg.Model), zap.Int("prompt_len", len(prompt)))

	config := &genai.GenerateContentConfig{}
	if c.cfg.Temperature > 0 {
		temp := c.cfg.Temperature
		config.Temperature = &temp
	}
	if strings.TrimSpace(c.cfg.SystemPrompt) != "" {
		config.SystemInstruction = genai.NewContentFromText(c.cfg.SystemPrompt, genai.RoleUser)
	}
	if requiresJSONOutput(prompt) {
		config.ResponseMIMEType = "application/json"
	}

	contents := genai.Text(prompt)
	resp, err := retry.Value(ctx, c.cfg.Retry, "generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		return c.api.GenerateContent(ctx, c.cfg.Model, contents, config)
	})
	if err != nil {
		c.logger.Error("generation failed", zap.Duration("elapsed", time.Since(startTime)), zap.Error(err))
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Complete finished",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Int("response_len", len(text)))
	return text, nil
}

// responseText joins the non-thought parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no completion returned")
	}

	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		result.WriteString(part.Text)
	}
	return strings.TrimSpace(result.String()), nil
}

// requiresJSONOutput checks if the prompt asks for a JSON-only answer.
func requiresJSONOutput(prompt string) bool {
	markers := []string{
		"Respond JSON only",
		"Return ONLY a JSON object",
		"application/json",
	}
	for _, marker := range markers {
		if strings.Contains(prompt, marker) {
			return true
		}
	}
	return false
}
