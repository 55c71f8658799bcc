package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// debounceWindow coalesces bursts of file events before reloading. Editors
// and atomic saves emit several events per logical write.
const debounceWindow = 200 * time.Millisecond

// WatchInventory monitors the inventory file at path and calls onChange with
// the freshly loaded resource list once each change settles. It runs until
// ctx is cancelled.
//
// If a reload fails (invalid YAML, bad resource kind), the error is logged
// and the previous inventory remains active; onChange is not called.
func WatchInventory(ctx context.Context, path string, onChange func([]telemetry.Resource)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("inventory: watching for changes", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only reload on write or create events. Editors often write
			// via rename (atomic save), so also catch fsnotify.Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(debounceWindow)

		case <-pending:
			pending = nil
			resources, err := LoadInventory(path)
			if err != nil {
				slog.Error("inventory: reload failed, keeping previous inventory",
					"path", path, "err", err)
				continue
			}
			slog.Info("inventory: reloaded", "path", path, "resources", len(resources))
			onChange(resources)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("inventory: watcher error", "err", err)
		}
	}
}
