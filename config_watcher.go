// Config file watcher for live reloads. The watcher is itself a managed
// component, so it participates in the ordered lifecycle like everything
// else it serves.
package conductor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events editors emit for
// a single save into one reload.
const reloadDebounce = 250 * time.Millisecond

// ConfigWatcher watches a config file and applies changes to the
// orchestrator at runtime. Editors often replace files via rename, so the
// watch is placed on the containing directory and events are filtered to
// the target file.
type ConfigWatcher struct {
	path   string
	orch   *Orchestrator
	logger Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher creates a watcher for the config file at path. Register
// it like any other component; it starts watching when started and releases
// the watch when stopped.
func NewConfigWatcher(path string, orch *Orchestrator, logger Logger) (*ConfigWatcher, error) {
	if path == "" {
		return nil, ErrConfigPathEmpty
	}
	return &ConfigWatcher{
		path:   filepath.Clean(path),
		orch:   orch,
		logger: logger,
	}, nil
}

// Start implements Component.
func (w *ConfigWatcher) Start(_ context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})

	go w.watch()

	w.logger.Info("Watching config file for changes", "path", w.path)
	return nil
}

// Stop implements Component. It releases the filesystem watch and cancels
// any debounced reload still pending, so no reload fires after the watcher
// component has stopped.
func (w *ConfigWatcher) Stop(_ context.Context) error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	w.watcher = nil
	return err
}

func (w *ConfigWatcher) watch() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous configuration",
			"path", w.path, "error", err)
		return
	}

	w.logger.Info("Config file changed, applying", "path", w.path)
	w.orch.Reconfigure(cfg)
}
