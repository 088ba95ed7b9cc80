package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce groups bursts of file events into one indexing run
const DefaultWatchDebounce = 2 * time.Second

// Watch re-indexes dir after files below it change, until ctx is done.
// Deleted files keep their points until the collection is reset.
func (ix *Indexer) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, dir); err != nil {
		return err
	}
	ix.Logger.Info("watching book sources", "dir", dir, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			// fsnotify is not recursive
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						ix.Logger.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			ix.Logger.Debug("book source changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.Logger.Warn("watcher error", "error", err)

		case <-timer.C:
			stats, err := ix.Run(ctx, dir, "")
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				ix.Logger.Error("re-index failed", "dir", dir, "error", err)
				continue
			}
			ix.Logger.Info("re-indexed after change", "files", stats.Files, "indexed", stats.Indexed)
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
