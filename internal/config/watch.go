package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file whenever it is written and hands the new
// value to onChange. Reloads that fail validation are logged and skipped.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, configPath string, logger *zap.Logger, onChange func(*Config)) error {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	configPath = filepath.Clean(configPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", configPath, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(configPath)
			if err != nil {
				logger.Warn("Config reload failed", zap.String("path", configPath), zap.Error(err))
				continue
			}
			logger.Info("Config reloaded", zap.String("path", configPath))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}
