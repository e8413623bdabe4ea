// Package watch triggers synchronization passes when the upstream mirror
// changes on disk, as an alternative to cron scheduling.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher debounces filesystem events under a root and invokes the trigger
// once per quiet period.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ignore   map[string]bool
	debounce time.Duration
	trigger  func(ctx context.Context)
	logger   *zap.Logger
}

func New(debounce time.Duration, trigger func(ctx context.Context), logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher: fsw,
		ignore: map[string]bool{
			".git":         true,
			".repobridge":  true,
			"node_modules": true,
			"vendor":       true,
			"dist":         true,
			"build":        true,
		},
		debounce: debounce,
		trigger:  trigger,
		logger:   logger,
	}, nil
}

// register watches root and every subdirectory not in the ignore set.
func (w *Watcher) register(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if w.ignore[info.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Watch registers root and its subdirectories and blocks until ctx is done.
func (w *Watcher) Watch(ctx context.Context, root string) error {
	defer w.watcher.Close()

	if err := w.register(root); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.ignore[filepath.Base(filepath.Dir(event.Name))] {
				continue
			}
			// New directories need registering; everything else just arms
			// the debounce timer.
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() && !w.ignore[info.Name()] {
					if addErr := w.watcher.Add(event.Name); addErr != nil {
						w.logger.Warn("watching new directory", zap.Error(addErr))
					}
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			w.logger.Info("change detected, triggering sync")
			w.trigger(ctx)
		}
	}
}
