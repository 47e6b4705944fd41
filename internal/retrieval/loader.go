package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"replydesk/internal/embedding"
	"replydesk/internal/logging"
	"replydesk/internal/store"
)

// SnapshotStore persists built indexes.
type SnapshotStore interface {
	Load(ctx context.Context) (store.Snapshot, error)
	Save(ctx context.Context, snap store.Snapshot) error
}

// LoadOptions controls when a stored index is reused.
type LoadOptions struct {
	CorpusPath string
	VerifyHash bool // rebuild when the stored corpus hash differs
	Force      bool // always rebuild
}

// Loader reuses a stored index when possible and rebuilds otherwise.
type Loader struct {
	engine embedding.Engine
	store  SnapshotStore
	opts   LoadOptions
	logger *zap.Logger
}

// NewLoader creates a loader.
func NewLoader(engine embedding.Engine, st SnapshotStore, opts LoadOptions, logger *zap.Logger) *Loader {
	return &Loader{
		engine: engine,
		store:  st,
		opts:   opts,
		logger: logging.For(logger, logging.CategoryRetrieval),
	}
}

// CorpusPath returns the watched corpus file.
func (l *Loader) CorpusPath() string { return l.opts.CorpusPath }

// CorpusHash hashes the corpus file as it is now.
func (l *Loader) CorpusHash() (string, error) {
	data, err := os.ReadFile(l.opts.CorpusPath)
	if err != nil {
		return "", fmt.Errorf("read policy corpus: %w", err)
	}
	return CorpusHash(string(data)), nil
}

// Load returns the index for the current corpus. rebuilt reports whether
// the embedder was called.
func (l *Loader) Load(ctx context.Context) (ix *Index, rebuilt bool, err error) {
	return l.load(ctx, l.opts.Force)
}

// Rebuild ignores any stored index.
func (l *Loader) Rebuild(ctx context.Context) (*Index, error) {
	ix, _, err := l.load(ctx, true)
	return ix, err
}

func (l *Loader) load(ctx context.Context, force bool) (*Index, bool, error) {
	data, err := os.ReadFile(l.opts.CorpusPath)
	if err != nil {
		return nil, false, fmt.Errorf("read policy corpus: %w", err)
	}
	corpus := string(data)
	sha := CorpusHash(corpus)

	if !force {
		snap, err := l.store.Load(ctx)
		switch {
		case err == nil:
			if reason := l.staleReason(snap, sha); reason != "" {
				l.logger.Info("stored index is stale, rebuilding", zap.String("reason", reason))
				break
			}
			ix, err := FromSnapshot(l.engine, snap, l.logger)
			if err != nil {
				return nil, false, err
			}
			l.logger.Info("index loaded from store", zap.Int("chunks", ix.Len()))
			return ix, false, nil
		case errors.Is(err, store.ErrNotFound):
			l.logger.Info("no stored index, building")
		default:
			l.logger.Warn("stored index unreadable, rebuilding", zap.Error(err))
		}
	}

	ix, err := Build(ctx, l.engine, corpus, l.logger)
	if err != nil {
		return nil, false, err
	}
	if err := l.store.Save(ctx, ix.Snapshot()); err != nil {
		return nil, false, fmt.Errorf("persist index: %w", err)
	}
	return ix, true, nil
}

// staleReason explains why a stored snapshot cannot serve the current corpus.
func (l *Loader) staleReason(snap store.Snapshot, sha string) string {
	if snap.Model != "" && snap.Model != l.engine.Name() {
		return "embedding model changed"
	}
	if dims := l.engine.Dimensions(); dims > 0 && snap.Dims > 0 && snap.Dims != dims {
		return "embedding dimensions changed"
	}
	if l.opts.VerifyHash && snap.CorpusSHA != sha {
		return "corpus changed"
	}
	return ""
}
