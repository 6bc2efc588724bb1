package registry

import (
	"github.com/fsnotify/fsnotify"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

// Watcher hot-reloads a FileRegistry on fsnotify write events, grounded
// on the teacher's domain/service/config_watcher.go atomic-snapshot-swap
// shape, adapted from polling to an fsnotify watch per SPEC_FULL.md
// §4.14.
type Watcher struct {
	registry *FileRegistry
	watcher  *fsnotify.Watcher
	logger   telemetry.Logger
	stopCh   chan struct{}
}

// NewWatcher starts watching the registry's manifest file for changes.
// Call Stop to release the underlying fsnotify watcher.
func NewWatcher(r *FileRegistry, logger telemetry.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(r.path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{registry: r, watcher: fw, logger: logger, stopCh: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.registry.Reload(); err != nil {
				if w.logger != nil {
					w.logger.Warn("manifest reload failed: " + err.Error())
				}
				continue
			}
			if w.logger != nil {
				w.logger.Info("manifest reloaded: " + w.registry.path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("manifest watcher error: " + err.Error())
			}
		}
	}
}

// Stop releases the fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}
