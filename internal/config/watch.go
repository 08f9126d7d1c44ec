package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

// Watch calls onChange each time the file at path is written or replaced. It
// runs until ctx is cancelled. Parsing the file is left to onChange.
//
// The parent directory is watched so a save that renames a new file over
// path keeps being observed.
func Watch(ctx context.Context, path string, onChange func(ctx context.Context)) error {
	log := logger.GetOrNop().Named("config-watch")

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: watcher: %w", ErrLoadConfig, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}
	log.Info(ctx, "watching for changes", logger.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			// A rename over path arrives as Create; Remove and Rename of path
			// itself leave nothing to read yet.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Info(ctx, "file changed", logger.String("path", path), logger.String("op", event.Op.String()))
			onChange(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ctx, "watcher error", logger.Error(err))
		}
	}
}
