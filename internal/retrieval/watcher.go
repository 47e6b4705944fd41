package retrieval

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"replydesk/internal/logging"
)

// PolicyWatcher rebuilds the index when the policy corpus changes on disk
// and publishes the result through a Holder.
type PolicyWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	loader      *Loader
	holder      *Holder
	target      string
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	logger      *zap.Logger

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events   int
	Reloads  int
	Errors   int
	LastLoad time.Time
}

// NewPolicyWatcher creates a watcher for the loader's corpus file.
func NewPolicyWatcher(loader *Loader, holder *Holder, logger *zap.Logger) (*PolicyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target, err := filepath.Abs(loader.CorpusPath())
	if err != nil {
		watcher.Close()
		return nil, err
	}
	return &PolicyWatcher{
		watcher:     watcher,
		loader:      loader,
		holder:      holder,
		target:      target,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logging.For(logger, logging.CategoryRetrieval),
	}, nil
}

// Start begins watching. It watches the parent directory so editors that
// replace the file by rename are seen. This method is non-blocking.
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	if pw.running {
		pw.mu.Unlock()
		return nil
	}
	pw.running = true
	pw.mu.Unlock()

	if err := pw.watcher.Add(filepath.Dir(pw.target)); err != nil {
		pw.mu.Lock()
		pw.running = false
		pw.mu.Unlock()
		return err
	}
	pw.logger.Info("watching policy corpus", zap.String("path", pw.target))

	go pw.run(ctx)
	return nil
}

// Stop stops the watcher, waits for the event loop to exit and logs the
// activity counters.
func (pw *PolicyWatcher) Stop() {
	pw.mu.Lock()
	wasRunning := pw.running
	pw.running = false
	pw.mu.Unlock()

	if wasRunning {
		close(pw.stopCh)
		<-pw.doneCh
	}
	if err := pw.watcher.Close(); err != nil {
		pw.logger.Error("error closing watcher", zap.Error(err))
	}

	st := pw.Stats()
	pw.logger.Info("policy watcher stopped",
		zap.Int("events", st.Events),
		zap.Int("reloads", st.Reloads),
		zap.Int("errors", st.Errors))
}

// Stats returns a copy of the activity counters.
func (pw *PolicyWatcher) Stats() WatcherStats {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.stats
}

func (pw *PolicyWatcher) run(ctx context.Context) {
	defer close(pw.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pw.stopCh:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			pw.handleEvent(event, time.Now())
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Error("watcher error", zap.Error(err))
			pw.mu.Lock()
			pw.stats.Errors++
			pw.mu.Unlock()
		case now := <-debounceTicker.C:
			if pw.due(now) {
				pw.reload(ctx)
			}
		}
	}
}

// handleEvent records a change to the corpus file for debounced processing.
func (pw *PolicyWatcher) handleEvent(event fsnotify.Event, now time.Time) {
	if filepath.Clean(event.Name) != pw.target {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	pw.mu.Lock()
	pw.stats.Events++
	pw.pending = now
	pw.mu.Unlock()
}

// due reports whether a recorded change has settled and clears it.
func (pw *PolicyWatcher) due(now time.Time) bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.pending.IsZero() || now.Sub(pw.pending) < pw.debounceDur {
		return false
	}
	pw.pending = time.Time{}
	return true
}

// reload rebuilds from the corpus and swaps the index in when the corpus
// content changed. On failure the previous index stays published.
func (pw *PolicyWatcher) reload(ctx context.Context) {
	sha, err := pw.loader.CorpusHash()
	if err != nil {
		pw.fail("policy corpus unreadable, keeping previous index", err)
		return
	}
	if prev := pw.holder.Current(); prev != nil && prev.CorpusSHA() == sha {
		pw.logger.Debug("policy unchanged, keeping index")
		return
	}

	ix, err := pw.loader.Rebuild(ctx)
	if err != nil {
		pw.fail("policy reload failed, keeping previous index", err)
		return
	}
	pw.holder.Swap(ix)

	pw.mu.Lock()
	pw.stats.Reloads++
	pw.stats.LastLoad = time.Now()
	pw.mu.Unlock()
	pw.logger.Info("policy index swapped", zap.Int("chunks", ix.Len()))
}

func (pw *PolicyWatcher) fail(msg string, err error) {
	pw.logger.Error(msg, zap.Error(err))
	pw.mu.Lock()
	pw.stats.Errors++
	pw.mu.Unlock()
}
