package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the record whenever another process rewrites it, until ctx
// is done. The parent directory is watched because records are replaced by
// rename.
func (g *Gate) Watch(ctx context.Context) error {
	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create maintenance directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	name := filepath.Clean(g.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := g.Reload(); err != nil {
				g.logger.Warn().Err(err).Msg("Failed to reload maintenance record")
				continue
			}
			g.logger.Debug().Bool("enabled", g.IsActive()).Msg("Maintenance record reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			g.logger.Warn().Err(err).Msg("Maintenance watcher error")
		}
	}
}
