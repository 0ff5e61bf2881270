package loader

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/logger"
	"github.com/puckline/puckline/sym"
)

// DocumentWatcher watches a schema document for changes and triggers
// revalidation callbacks. Used by `schema load --watch` as an editing
// convenience; it never activates anything on its own.
type DocumentWatcher struct {
	path           string
	watcher        *fsnotify.Watcher
	callbacks      []ChangeCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	done           chan struct{}
}

// ChangeCallback is invoked after the debounce period with the watched
// document path.
type ChangeCallback func(path string) error

// NewDocumentWatcher creates a watcher for the given document path.
func NewDocumentWatcher(path string) (*DocumentWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch schema document %s", path)
	}

	return &DocumentWatcher{
		path:           path,
		watcher:        watcher,
		debouncePeriod: 500 * time.Millisecond, // editors fire bursts of writes
		done:           make(chan struct{}),
	}, nil
}

// OnChange registers a callback for document changes.
func (w *DocumentWatcher) OnChange(callback ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for document changes.
func (w *DocumentWatcher) Start() {
	go w.watchLoop()
}

func (w *DocumentWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				logger.Debugw("Schema document changed",
					"symbol", sym.Schema,
					"file", event.Name,
					"op", event.Op.String(),
				)
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Errorw("Schema document watcher error",
				"symbol", sym.Schema,
				"error", err,
			)

		case <-w.done:
			return
		}
	}
}

func (w *DocumentWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.fireCallbacks)
}

func (w *DocumentWatcher) fireCallbacks() {
	w.mu.RLock()
	callbacks := append([]ChangeCallback(nil), w.callbacks...)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(w.path); err != nil {
			logger.Warnw("Schema document revalidation failed",
				"symbol", sym.Schema,
				"file", w.path,
				"error", err,
			)
		}
	}
}

// Stop stops watching and releases the underlying watcher.
func (w *DocumentWatcher) Stop() error {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}
