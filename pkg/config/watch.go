package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay debounces bursts of file events into one reload.
const DefaultReloadDelay = 500 * time.Millisecond

// CatalogWatcher reloads a catalog file when it changes on disk.
type CatalogWatcher struct {
	parser *Parser
	path   string
	delay  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewCatalogWatcher creates a watcher for the catalog at path.
func NewCatalogWatcher(parser *Parser, path string, logger zerolog.Logger) *CatalogWatcher {
	return &CatalogWatcher{
		parser: parser,
		path:   filepath.Clean(path),
		delay:  DefaultReloadDelay,
		logger: logger.With().Str("component", "catalog-watcher").Str("path", path).Logger(),
	}
}

// SetDelay overrides the debounce delay.
func (w *CatalogWatcher) SetDelay(d time.Duration) {
	w.delay = d
}

// Watch starts watching in the background until ctx is cancelled. onReload is
// called with every successfully parsed catalog. A catalog that fails to
// parse is logged and onError is called; the previous catalog stays in use.
//
// The parent directory is watched rather than the file so that editors that
// replace the file by rename are still observed.
func (w *CatalogWatcher) Watch(ctx context.Context, onReload func(*Catalog), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.processEvents(ctx, watcher, onReload, onError)

	w.logger.Info().Msg("Started watching catalog")
	return nil
}

func (w *CatalogWatcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, onReload func(*Catalog), onError func(error)) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = w.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Catalog file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.delay, func() {
				w.reload(ctx, onReload, onError)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Catalog watcher error")
		}
	}
}

func (w *CatalogWatcher) reload(ctx context.Context, onReload func(*Catalog), onError func(error)) {
	cat, err := w.parser.LoadCatalog(ctx, w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Catalog reload failed, keeping previous catalog")
		if onError != nil {
			onError(err)
		}
		return
	}

	w.logger.Info().
		Int("recipes", cat.Recipes.Len()).
		Int("buckets", cat.Buckets.Len()).
		Msg("Catalog reloaded")
	onReload(cat)
}

// Stop stops watching. It is safe to call more than once.
func (w *CatalogWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
