// internal/config/watch.go
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Corphon/AvaChat/internal/utils"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the configuration whenever path changes and passes the new
// copy to onChange. The parent directory is watched so editors that replace
// the file by rename are seen. Watch returns once the watcher is running;
// it stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*AppConfig)) error {
	if path == "" {
		return fmt.Errorf("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	logger := utils.GetLogger()
	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				cfg, err := Reload()
				if err != nil {
					logger.Warn("Config reload failed, keeping previous settings", map[string]interface{}{
						"file":  filepath.Base(abs),
						"error": err.Error(),
					})
					continue
				}
				logger.Info("Config reloaded", map[string]interface{}{
					"file":     filepath.Base(abs),
					"provider": cfg.LLMProvider,
				})
				if onChange != nil {
					onChange(cfg)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	return nil
}
