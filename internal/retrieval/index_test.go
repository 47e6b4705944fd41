package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replydesk/internal/embedding"
	"replydesk/internal/store"
)

func TestBuild_EmbedsChunksOnceInDocumentMode(t *testing.T) {
	engine := newBagOfWords()
	ix, err := Build(context.Background(), engine, policyCorpus, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, ix.Len())
	require.Equal(t, 1, engine.callCount())
	assert.Equal(t, embedding.TaskRetrievalDocument, engine.calls[0])
	assert.Len(t, engine.texts[0], 4)
	assert.Equal(t, CorpusHash(policyCorpus), ix.CorpusSHA())
}

func TestQuery_OwnChunkRanksFirst(t *testing.T) {
	engine := newBagOfWords()
	ix, err := Build(context.Background(), engine, policyCorpus, nil)
	require.NoError(t, err)

	for _, chunk := range ix.Chunks() {
		got, err := ix.Query(context.Background(), chunk, 4)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, chunk, got[0])
	}
	assert.Equal(t, embedding.TaskRetrievalQuery, engine.calls[len(engine.calls)-1])
}

func TestQuery_RelevantChunk(t *testing.T) {
	ix, err := Build(context.Background(), newBagOfWords(), policyCorpus, nil)
	require.NoError(t, err)

	got, err := ix.Query(context.Background(), "how many kg can my bag be checked", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "# Baggage"), got[0])
}

func TestQuery_KLargerThanIndex(t *testing.T) {
	ix, err := Build(context.Background(), newBagOfWords(), policyCorpus, nil)
	require.NoError(t, err)

	got, err := ix.Query(context.Background(), "refund", 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestQuery_EmptyIndexSkipsEmbedder(t *testing.T) {
	engine := newBagOfWords()
	ix, err := Build(context.Background(), engine, "\n\n", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.callCount())

	got, err := ix.Query(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Equal(t, 0, engine.callCount())

	ix2, err := Build(context.Background(), engine, policyCorpus, nil)
	require.NoError(t, err)
	calls := engine.callCount()
	got, err = ix2.Query(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, calls, engine.callCount())
}

func TestQuery_TiesKeepCorpusOrder(t *testing.T) {
	snap := store.Snapshot{
		Chunks:  []string{"first", "second", "third"},
		Vectors: [][]float32{{0, 1}, {0, 1}, {1, 0}},
	}
	engine := &fixedEngine{vec: []float32{0, 1}}
	ix, err := FromSnapshot(engine, snap, nil)
	require.NoError(t, err)

	got, err := ix.Query(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestQuery_ScalingStoredVectorsDoesNotChangeRanking(t *testing.T) {
	base := store.Snapshot{
		Chunks:  []string{"a", "b", "c"},
		Vectors: [][]float32{{1, 0.2}, {0.3, 1}, {0.7, 0.7}},
	}
	scaled := store.Snapshot{
		Chunks:  base.Chunks,
		Vectors: [][]float32{{10, 2}, {0.03, 0.1}, {700, 700}},
	}
	engine := &fixedEngine{vec: []float32{0.9, 0.4}}

	ix1, err := FromSnapshot(engine, base, nil)
	require.NoError(t, err)
	ix2, err := FromSnapshot(engine, scaled, nil)
	require.NoError(t, err)

	got1, err := ix1.Query(context.Background(), "q", 3)
	require.NoError(t, err)
	got2, err := ix2.Query(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, got1, got2)
}

func TestQuery_EmbedFailure(t *testing.T) {
	engine := newBagOfWords()
	ix, err := Build(context.Background(), engine, policyCorpus, nil)
	require.NoError(t, err)

	engine.err = errors.New("Error 500, Message: internal")
	_, err = ix.Query(context.Background(), "refund", 4)
	assert.ErrorContains(t, err, "embed query")
}

func TestFromSnapshot_Mismatch(t *testing.T) {
	_, err := FromSnapshot(&fixedEngine{}, store.Snapshot{Chunks: []string{"a"}}, nil)
	assert.Error(t, err)
}

func TestHolder(t *testing.T) {
	h := NewHolder(nil)
	_, err := h.Query(context.Background(), "x", 4)
	assert.ErrorIs(t, err, ErrNoIndex)

	ix, err := Build(context.Background(), newBagOfWords(), policyCorpus, nil)
	require.NoError(t, err)
	assert.Nil(t, h.Swap(ix))
	assert.Same(t, ix, h.Current())

	got, err := h.Query(context.Background(), "pets in cabin", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// fixedEngine returns the same vector for every input.
type fixedEngine struct {
	vec []float32
}

func (f *fixedEngine) Embed(_ context.Context, texts []string, _ embedding.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fixedEngine) Dimensions() int { return len(f.vec) }
func (f *fixedEngine) Name() string    { return "fake:fixed" }
