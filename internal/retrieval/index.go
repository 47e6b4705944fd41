// Package retrieval builds and queries the in-memory policy index used to
// ground reply drafts.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"replydesk/internal/embedding"
	"replydesk/internal/logging"
	"replydesk/internal/store"
)

// ErrNoIndex is returned when a query reaches a Holder that was never loaded.
var ErrNoIndex = errors.New("retrieval index not loaded")

// Retriever answers top-k policy queries.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Index is an immutable set of chunks and their unit-length vectors.
// It is safe for concurrent queries.
type Index struct {
	engine    embedding.Engine
	chunks    []string
	raw       [][]float32
	vectors   [][]float32
	corpusSHA string
	logger    *zap.Logger
}

// CorpusHash returns the hex SHA-256 of a corpus.
func CorpusHash(corpus string) string {
	sum := sha256.Sum256([]byte(corpus))
	return hex.EncodeToString(sum[:])
}

// Build chunks the corpus and embeds every chunk once in document mode.
func Build(ctx context.Context, engine embedding.Engine, corpus string, logger *zap.Logger) (*Index, error) {
	logger = logging.For(logger, logging.CategoryRetrieval)
	timer := logging.StartTimer(logger, "BuildIndex")
	defer timer.Stop()

	chunks := Chunk(corpus)
	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		vectors, err = engine.Embed(ctx, chunks, embedding.SelectTaskType(embedding.ContentTypePolicyChunk))
		if err != nil {
			return nil, fmt.Errorf("embed corpus: %w", err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embed corpus: got %d vectors for %d chunks", len(vectors), len(chunks))
		}
	}

	logger.Info("index built", zap.Int("chunks", len(chunks)), zap.String("engine", engine.Name()))
	return newIndex(engine, chunks, vectors, CorpusHash(corpus), logger), nil
}

// FromSnapshot rebuilds an index from persisted chunks and vectors
// without calling the embedder.
func FromSnapshot(engine embedding.Engine, snap store.Snapshot, logger *zap.Logger) (*Index, error) {
	if len(snap.Chunks) != len(snap.Vectors) {
		return nil, fmt.Errorf("snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}
	return newIndex(engine, snap.Chunks, snap.Vectors, snap.CorpusSHA, logging.For(logger, logging.CategoryRetrieval)), nil
}

func newIndex(engine embedding.Engine, chunks []string, raw [][]float32, sha string, logger *zap.Logger) *Index {
	normalized := make([][]float32, len(raw))
	for i, v := range raw {
		normalized[i] = embedding.Normalize(v)
	}
	return &Index{
		engine:    engine,
		chunks:    chunks,
		raw:       raw,
		vectors:   normalized,
		corpusSHA: sha,
		logger:    logger,
	}
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Chunks returns a copy of the chunk texts in corpus order.
func (ix *Index) Chunks() []string {
	return append([]string(nil), ix.chunks...)
}

// CorpusSHA returns the hash of the corpus the index was built from.
func (ix *Index) CorpusSHA() string { return ix.corpusSHA }

// Snapshot returns the persistable form of the index.
func (ix *Index) Snapshot() store.Snapshot {
	return store.Snapshot{
		Model:     ix.engine.Name(),
		Dims:      ix.engine.Dimensions(),
		CorpusSHA: ix.corpusSHA,
		Chunks:    ix.chunks,
		Vectors:   ix.raw,
	}
}

// Query returns up to k chunks most similar to text, most similar first.
// An empty index or non-positive k yields an empty result without an
// embedding call.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]string, error) {
	if len(ix.chunks) == 0 || k <= 0 {
		return []string{}, nil
	}

	vecs, err := ix.engine.Embed(ctx, []string{text}, embedding.SelectTaskType(embedding.ContentTypeInquiry))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	top, err := embedding.FindTopK(embedding.Normalize(vecs[0]), ix.vectors, k)
	if err != nil {
		return nil, fmt.Errorf("rank chunks: %w", err)
	}

	out := make([]string, len(top))
	for i, r := range top {
		out[i] = ix.chunks[r.Index]
	}
	ix.logger.Debug("query ranked", zap.Int("k", k), zap.Int("returned", len(out)))
	return out, nil
}
