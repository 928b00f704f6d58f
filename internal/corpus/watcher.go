package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scribe/internal/logging"
)

// Watcher re-ingests note files as they change while a run is active.
// Rapid editor saves are debounced.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	ingester    *Ingester
	notesDir    string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	// Stats for diagnostics
	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	FilesIngested int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// NewWatcher creates a Watcher over the notes directory.
func NewWatcher(notesDir string, ingester *Ingester) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		ingester:    ingester,
		notesDir:    notesDir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the notes directory. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.notesDir); err != nil {
		// Directory may not exist yet; the corpus is optional
		logging.Get(logging.CategoryCorpus).Warn("Watcher: initial watch failed (dir may not exist): %v", err)
	} else {
		logging.Corpus("Watcher: watching directory: %s", w.notesDir)
	}

	// Watch subdirectories too; fsnotify is not recursive
	_ = filepath.WalkDir(w.notesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == w.notesDir {
			return nil
		}
		_ = w.watcher.Add(path)
		return nil
	})

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

// Stats returns a copy of the watcher stats.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			logging.Get(logging.CategoryCorpus).Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !supportedNote(event.Name) {
		// A new subdirectory needs watching
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
		}
		return
	}

	w.mu.Lock()
	last, seen := w.debounceMap[event.Name]
	now := time.Now()
	if seen && now.Sub(last) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.debounceMap[event.Name] = now
	w.stats.LastEventTime = now
	w.stats.LastEventPath = event.Name
	w.mu.Unlock()

	if _, err := w.ingester.IngestFile(ctx, event.Name); err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		logging.Get(logging.CategoryCorpus).Warn("Watcher: re-ingest of %s failed: %v", event.Name, err)
		return
	}

	w.mu.Lock()
	w.stats.FilesIngested++
	w.mu.Unlock()
	logging.CorpusDebug("Watcher: re-ingested %s", event.Name)
}
