// Package settings persists user preferences in a JSON file and reloads
// them live when the file changes on disk, so an external editor and the
// control API stay consistent.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"appguard/internal/core"
)

// Store owns the settings file. Reads are cheap in-memory copies; writes
// go through Update which persists atomically.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  core.Settings
	onChange []func(core.Settings)
}

// Load opens (or creates with defaults) the settings file at path.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		logger:  logger.With("component", "settings"),
		current: core.DefaultSettings(),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.save(s.current); err != nil {
			return nil, fmt.Errorf("failed to write default settings: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		loaded := core.DefaultSettings()
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
		s.current = loaded
	}
	return s, nil
}

// Current returns a copy of the active settings.
func (s *Store) Current() core.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers a callback invoked (on the watcher/updater goroutine)
// whenever the settings change. Register before Watch starts.
func (s *Store) OnChange(fn func(core.Settings)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Update mutates the settings and persists them.
func (s *Store) Update(mutate func(*core.Settings)) (core.Settings, error) {
	s.mu.Lock()
	updated := s.current
	mutate(&updated)
	if err := s.save(updated); err != nil {
		s.mu.Unlock()
		return core.Settings{}, err
	}
	s.current = updated
	callbacks := append([]func(core.Settings){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(updated)
	}
	return updated, nil
}

// save writes atomically: temp file in the same directory, then rename.
func (s *Store) save(settings core.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Watch reloads the file when something else rewrites it. Blocks until ctx
// is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("settings watcher error", "error", err)
		}
	}
}

func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Error("settings reload failed", "error", err)
		return
	}
	loaded := core.DefaultSettings()
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Error("settings reload failed", "error", err)
		return
	}

	s.mu.Lock()
	if loaded == s.current {
		s.mu.Unlock()
		return
	}
	s.current = loaded
	callbacks := append([]func(core.Settings){}, s.onChange...)
	s.mu.Unlock()

	s.logger.Info("settings reloaded from disk")
	for _, fn := range callbacks {
		fn(loaded)
	}
}
