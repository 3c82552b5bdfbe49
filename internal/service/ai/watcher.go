package ai

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"leafscan/internal/logger"
)

// Watcher evicts a model from the loader cache when its artifact changes in
// the model directory.
type Watcher struct {
	dir     string
	loader  *Loader
	logger  *logger.Logger
	watcher *fsnotify.Watcher
	// evicted receives each identifier after eviction; nil outside tests.
	evicted chan<- string
}

// NewWatcher starts watching dir.
func NewWatcher(dir string, loader *Loader, logger *logger.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create model watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		loader:  loader,
		logger:  logger,
		watcher: fw,
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warning("Model watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	id, ok := w.loader.Catalog().ByArtifact(filepath.Base(filepath.Clean(event.Name)))
	if !ok {
		return
	}

	if w.loader.Evict(id) {
		w.logger.Info("Model %s artifact changed (%s), cache entry dropped", id, event.Op)
	}
	if w.evicted != nil {
		select {
		case w.evicted <- id:
		default:
		}
	}
}
