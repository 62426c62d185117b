package auth

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Watch monitors the keyring file at path and swaps kr's key set each time
// the file is written. It runs until ctx is cancelled.
//
// If a reload fails (unreadable file, invalid YAML), the error is logged and
// the previous key set stays active.
func Watch(ctx context.Context, path string, kr *Keyring) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("auth: watching keyring for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only reload on write or create events. Editors often write via
			// rename (atomic save), so also catch fsnotify.Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			keys, err := readKeys(path)
			if err != nil {
				slog.Error("auth: keyring reload failed, keeping previous keys",
					"path", path, "err", err)
				continue
			}

			kr.Replace(keys)
			slog.Info("auth: keyring reloaded", "path", path, "keys", len(keys))

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("auth: keyring watcher error", "err", err)
		}
	}
}

func readKeys(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keysFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, err
	}
	return kf.Keys, nil
}
