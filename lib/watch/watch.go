// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch triggers hot reloads from source file changes. A
// Watcher monitors the project's source directories via fsnotify,
// debounces change bursts (a save-all touches many files at once), and
// delivers one trigger per quiet period on its channel. The consumer
// loop turns each trigger into a reload command for every running
// session.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/runmux/runmux/lib/clock"
)

// Config configures a Watcher.
type Config struct {
	// Root is the project directory.
	Root string

	// Paths are the directories under Root to watch, recursively.
	Paths []string

	// Extensions filters which file changes count (e.g., [".dart"]).
	// Empty matches every file.
	Extensions []string

	// Debounce is the quiet period after the last change before a
	// trigger fires. Defaults to 300ms.
	Debounce time.Duration

	// Clock is the time source. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives watcher diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher delivers debounced reload triggers.
type Watcher struct {
	config   Config
	notifier *fsnotify.Watcher
	triggers chan struct{}
	stop     chan struct{}
}

// New starts watching the configured directories. Callers drain
// Triggers until Close.
func New(config Config) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = 300 * time.Millisecond
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	watcher := &Watcher{
		config:   config,
		notifier: notifier,
		triggers: make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}

	for _, path := range config.Paths {
		root := filepath.Join(config.Root, path)
		if err := watcher.addRecursive(root); err != nil {
			notifier.Close()
			return nil, err
		}
	}

	go watcher.run()
	return watcher, nil
}

// Triggers delivers one value per debounced change burst. The channel
// has capacity one: bursts during an unconsumed trigger coalesce.
func (w *Watcher) Triggers() <-chan struct{} { return w.triggers }

// Close stops the watcher. Idempotent per the underlying notifier.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.notifier.Close()
}

// addRecursive registers a directory tree with the notifier. A missing
// directory is an error — the watch paths come from configuration and
// a typo should surface immediately.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.notifier.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// run debounces raw notifier events into triggers. Every relevant
// event restarts the quiet period; the trigger fires when it lapses.
func (w *Watcher) run() {
	var quiet <-chan time.Time
	for {
		select {
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories join the watch so nested saves
				// keep triggering.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.config.Logger.Debug("watching new directory", "error", err)
					}
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			quiet = w.config.Clock.After(w.config.Debounce)

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			w.config.Logger.Warn("file watcher error", "error", err)

		case <-quiet:
			quiet = nil
			select {
			case w.triggers <- struct{}{}:
			default:
			}

		case <-w.stop:
			return
		}
	}
}

// relevant reports whether a change should count toward a reload.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	if len(w.config.Extensions) == 0 {
		return true
	}
	extension := filepath.Ext(event.Name)
	for _, want := range w.config.Extensions {
		if extension == want {
			return true
		}
	}
	return false
}
