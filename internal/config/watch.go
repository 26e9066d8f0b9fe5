package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when the config file changes on disk.
// Editors typically replace files rather than writing in place, so the
// watcher observes the containing directory and filters events by name.
type Watcher struct {
	loader   *Loader
	fw       *fsnotify.Watcher
	file     string
	logger   *slog.Logger
	onChange func(*Config)
	done     chan struct{}
}

// Watch starts watching the config file used by this loader. onChange is
// called with the freshly loaded configuration after each change; reloads
// that fail to parse or validate are logged and skipped, keeping the last
// good configuration in effect.
func (l *Loader) Watch(onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	file := l.ConfigFile()
	if file == "" {
		return nil, fmt.Errorf("no config file in use")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(file)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(file), err)
	}

	w := &Watcher{
		loader:   l,
		fw:       fw,
		file:     filepath.Clean(file),
		logger:   logger,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload failed", "file", w.file, "error", err)
		return
	}
	if err := ValidateConfig(cfg); err != nil {
		w.logger.Warn("config reload rejected", "file", w.file, "error", err)
		return
	}
	w.logger.Info("config reloaded", "file", w.file)
	w.onChange(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
