package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"replydesk/internal/logging"
	"replydesk/internal/retry"
)

// =============================================================================
// GOOGLE GENAI EMBEDDING ENGINE
// =============================================================================

// embedAPI is the slice of genai.Models the engine uses.
type embedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GenAIOptions configures a GenAIEngine.
type GenAIOptions struct {
	Model      string
	Dimensions int
	BatchSize  int           // provider maximum is 100
	BatchDelay time.Duration // pause between consecutive batches
	Retry      retry.Policy
	Logger     *zap.Logger
}

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	api    embedAPI
	opts   GenAIOptions
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGenAIEngine creates a new GenAI embedding engine over an existing client.
func NewGenAIEngine(client *genai.Client, opts GenAIOptions) (*GenAIEngine, error) {
	if client == nil {
		return nil, fmt.Errorf("GenAI client is required")
	}
	return newGenAIEngine(client.Models, opts), nil
}

func newGenAIEngine(api embedAPI, opts GenAIOptions) *GenAIEngine {
	if opts.Model == "" {
		opts.Model = "gemini-embedding-001"
	}
	if opts.BatchSize <= 0 || opts.BatchSize > 100 {
		opts.BatchSize = 100
	}
	logger := logging.For(opts.Logger, logging.CategoryEmbedding)
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	return &GenAIEngine{api: api, opts: opts, logger: logger, sleep: sleepCtx}
}

// Embed embeds texts in batches. A rate-limited batch is retried with the
// same payload; any other failure aborts the whole call.
func (e *GenAIEngine) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	timer := logging.StartTimer(e.logger, "Embed")
	defer timer.Stop()

	cfg := &genai.EmbedContentConfig{TaskType: string(task)}
	if e.opts.Dimensions > 0 {
		dims := int32(e.opts.Dimensions)
		cfg.OutputDimensionality = &dims
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		if start > 0 && e.opts.BatchDelay > 0 {
			if err := e.sleep(ctx, e.opts.BatchDelay); err != nil {
				return nil, err
			}
		}

		end := min(start+e.opts.BatchSize, len(texts))
		batch := texts[start:end]
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}

		e.logger.Debug("embedding batch",
			zap.String("task", string(task)),
			zap.Int("start", start),
			zap.Int("size", len(batch)))

		resp, err := retry.Value(ctx, e.opts.Retry, "embed", func(ctx context.Context) (*genai.EmbedContentResponse, error) {
			return e.api.EmbedContent(ctx, e.opts.Model, contents, cfg)
		})
		if err != nil {
			return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
		}
		if resp == nil || len(resp.Embeddings) != len(batch) {
			got := 0
			if resp != nil {
				got = len(resp.Embeddings)
			}
			return nil, fmt.Errorf("GenAI returned %d embeddings for %d inputs", got, len(batch))
		}

		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("GenAI returned an empty embedding")
			}
			if e.opts.Dimensions > 0 && len(emb.Values) != e.opts.Dimensions {
				return nil, fmt.Errorf("GenAI embedding has dimension %d, want %d", len(emb.Values), e.opts.Dimensions)
			}
			out = append(out, emb.Values)
		}
	}

	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *GenAIEngine) Dimensions() int {
	return e.opts.Dimensions
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.opts.Model)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
