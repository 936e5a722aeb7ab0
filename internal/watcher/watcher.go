// Package watcher watches the dataset directory with fsnotify and reports, after a
// debounce, which terms had their canonical dataset file written.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/ingest"
	"github.com/hyperjump/coursegraph/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher invokes a callback once per burst of writes to a term's dataset file.
// Removals are ignored: the last good index keeps serving.
type Watcher struct {
	dir      string
	onChange func(term models.Term)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[models.Term]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a term must be quiet before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over the dataset directory dir.
func NewWatcher(dir string, onChange func(term models.Term), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		onChange: onChange,
		debounce: defaultDebounce,
		pending:  make(map[models.Term]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The directory is created if missing. The watcher runs
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	}
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Dir(filepath.Clean(ev.Name)) != w.dir {
		return
	}
	term, ok := ingest.ParseDatasetName(ev.Name)
	if !ok {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		w.schedule(term)
	}
}

func (w *Watcher) schedule(term models.Term) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[term]; ok {
		t.Stop()
	}
	w.pending[term] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, term)
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Debug("watcher dataset changed (debounced)", zap.String("term", term.String()))
		}
		if w.onChange != nil {
			w.onChange(term)
		}
	})
}

// SyncExisting invokes onChange for every dataset already present in the
// directory, in term order. Call it after Start to load the initial catalog.
func (w *Watcher) SyncExisting() error {
	files, err := ingest.ListDatasets(w.dir)
	if err != nil {
		return err
	}
	if w.logger != nil {
		w.logger.Debug("watcher syncing existing datasets", zap.Int("count", len(files)))
	}
	for _, f := range files {
		if w.onChange != nil {
			w.onChange(f.Term)
		}
	}
	return nil
}

// Stop stops the watcher and releases resources. Pending callbacks are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for term, t := range w.pending {
		t.Stop()
		delete(w.pending, term)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
