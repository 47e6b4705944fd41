package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"replydesk/internal/retry"
)

type embedCall struct {
	model string
	texts []string
	task  string
	dims  int32
}

type fakeEmbedAPI struct {
	mu          sync.Mutex
	calls       []embedCall
	dims        int
	rateLimited int // number of leading calls rejected with 429
	failWith    error
	short       bool
}

func (f *fakeEmbedAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := embedCall{model: model, task: cfg.TaskType}
	if cfg.OutputDimensionality != nil {
		call.dims = *cfg.OutputDimensionality
	}
	for _, c := range contents {
		call.texts = append(call.texts, c.Parts[0].Text)
	}
	f.calls = append(f.calls, call)

	if f.rateLimited > 0 {
		f.rateLimited--
		return nil, errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED")
	}
	if f.failWith != nil {
		return nil, f.failWith
	}

	n := len(contents)
	if f.short {
		n--
	}
	resp := &genai.EmbedContentResponse{}
	for i := 0; i < n; i++ {
		v := make([]float32, f.dims)
		v[0] = float32(len(call.texts[i]))
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: v})
	}
	return resp, nil
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = append(s.d, d)
	return nil
}

func newTestEngine(api *fakeEmbedAPI, batch int, delay time.Duration, s *sleeps) *GenAIEngine {
	e := newGenAIEngine(api, GenAIOptions{
		Model:      "gemini-embedding-001",
		Dimensions: api.dims,
		BatchSize:  batch,
		BatchDelay: delay,
		Retry:      retry.Policy{Cooldown: 65 * time.Second, Sleep: s.sleep},
	})
	e.sleep = s.sleep
	return e
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a'+i%26)) + "-chunk"
	}
	return out
}

func TestGenAIEngine_BatchesAndPreservesOrder(t *testing.T) {
	api := &fakeEmbedAPI{dims: 4}
	s := &sleeps{}
	e := newTestEngine(api, 100, time.Second, s)

	in := texts(250)
	vecs, err := e.Embed(context.Background(), in, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 250)

	require.Len(t, api.calls, 3)
	assert.Len(t, api.calls[0].texts, 100)
	assert.Len(t, api.calls[1].texts, 100)
	assert.Len(t, api.calls[2].texts, 50)
	assert.Equal(t, in[200], api.calls[2].texts[0])
	for _, c := range api.calls {
		assert.Equal(t, "RETRIEVAL_DOCUMENT", c.task)
		assert.Equal(t, int32(4), c.dims)
		assert.Equal(t, "gemini-embedding-001", c.model)
	}

	// One pause between each pair of batches, none after the last.
	assert.Equal(t, []time.Duration{time.Second, time.Second}, s.d)
}

func TestGenAIEngine_QueryTask(t *testing.T) {
	api := &fakeEmbedAPI{dims: 2}
	e := newTestEngine(api, 100, 0, &sleeps{})

	vecs, err := e.Embed(context.Background(), []string{"where is my refund"}, TaskRetrievalQuery)
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, "RETRIEVAL_QUERY", api.calls[0].task)
}

func TestGenAIEngine_RateLimitRetriesSameBatch(t *testing.T) {
	api := &fakeEmbedAPI{dims: 2, rateLimited: 2}
	s := &sleeps{}
	e := newTestEngine(api, 100, 0, s)

	in := []string{"one", "two"}
	vecs, err := e.Embed(context.Background(), in, TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	require.Len(t, api.calls, 3)
	for _, c := range api.calls {
		assert.Equal(t, in, c.texts)
	}
	assert.Equal(t, []time.Duration{65 * time.Second, 65 * time.Second}, s.d)
}

func TestGenAIEngine_HardErrorAborts(t *testing.T) {
	api := &fakeEmbedAPI{dims: 2, failWith: errors.New("Error 400, Message: bad request")}
	e := newTestEngine(api, 100, 0, &sleeps{})

	_, err := e.Embed(context.Background(), []string{"x"}, TaskRetrievalQuery)
	require.Error(t, err)
	assert.Len(t, api.calls, 1)
}

func TestGenAIEngine_CountMismatch(t *testing.T) {
	api := &fakeEmbedAPI{dims: 2, short: true}
	e := newTestEngine(api, 100, 0, &sleeps{})

	_, err := e.Embed(context.Background(), []string{"a", "b"}, TaskRetrievalDocument)
	assert.ErrorContains(t, err, "1 embeddings for 2 inputs")
}

func TestGenAIEngine_Empty(t *testing.T) {
	api := &fakeEmbedAPI{dims: 2}
	e := newTestEngine(api, 100, 0, &sleeps{})

	vecs, err := e.Embed(context.Background(), nil, TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Empty(t, api.calls)
}

func TestGenAIEngine_Defaults(t *testing.T) {
	e := newGenAIEngine(&fakeEmbedAPI{}, GenAIOptions{BatchSize: 500, Dimensions: 768})
	assert.Equal(t, "genai:gemini-embedding-001", e.Name())
	assert.Equal(t, 768, e.Dimensions())
	assert.Equal(t, 100, e.opts.BatchSize)

	_, err := NewGenAIEngine(nil, GenAIOptions{})
	assert.Error(t, err)
}
