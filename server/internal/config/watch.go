package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the event bursts editors and deploy tools emit for
// a single save (truncate, write, chmod, rename).
const reloadDebounce = 200 * time.Millisecond

// Watch monitors the config file at path and calls onChange with the newly
// loaded Config after each effective change. It runs until ctx is cancelled.
//
// The watch is armed on the file's directory rather than the file itself, so
// atomic saves (write temp file, rename over the original) do not detach it.
// Rewrites that load to an identical Config are suppressed; reload failures
// are logged and the previous config stays in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %q: %w", dir, err)
	}

	// Baseline for change suppression. A failed initial load just means the
	// first successful reload always fires.
	last, _ := Load(path)

	slog.Info("config: watching for changes", "path", path)

	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
				pending = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(reloadDebounce)
			}

		case <-pending:
			debounce, pending = nil, nil

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if last != nil && reflect.DeepEqual(cfg, last) {
				slog.Debug("config: rewrite with no effective change", "path", path)
				continue
			}
			last = cfg
			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
