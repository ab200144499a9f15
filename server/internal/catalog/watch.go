package catalog

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the catalog file and reloads it each time it is written.
// It runs until ctx is cancelled.
//
// A failed reload (e.g. invalid YAML) is logged and the previous catalog
// snapshot remains active.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(c.path); err != nil {
		return err
	}

	slog.Info("catalog: watching for changes", "path", c.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename (atomic replace), so catch
			// Create as well as Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := c.Reload(); err != nil {
				slog.Error("catalog: reload failed — keeping previous catalog",
					"path", c.path, "err", err)
				continue
			}
			slog.Info("catalog: reloaded", "path", c.path)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(c.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("catalog: watcher error", "err", err)
		}
	}
}
