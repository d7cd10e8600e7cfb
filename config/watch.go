package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the bursts of events editors and atomic-rename
// writers produce into one reload.
const debounce = 250 * time.Millisecond

// Watch reloads the manifest at path whenever the file changes and
// hands each successfully parsed version to apply. A manifest that
// fails to load is logged and skipped; the previous configuration
// stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log *slog.Logger, apply func(*Manifest)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic renames replace the
	// inode and a file-level watch would go stale after one reload.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			evPath, err := filepath.Abs(ev.Name)
			if err != nil || evPath != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case <-fire:
			m, err := Load(path)
			if err != nil {
				log.Warn("manifest reload failed, keeping previous configuration", "path", path, "err", err)
				continue
			}
			log.Info("manifest reloaded", "path", path, "realms", len(m.Realms))
			apply(m)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("manifest watcher error", "err", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
