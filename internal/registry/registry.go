// Package registry manages the list of protected applications: CRUD over
// storage plus an in-memory index for the hot read path (every process
// event consults it).
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"appguard/internal/core"
	"appguard/internal/idgen"
	"appguard/internal/storage"
)

// ErrExemptApp is returned when trying to protect a blacklisted app; it
// could never be locked anyway.
var ErrExemptApp = errors.New("app is exempt and cannot be protected")

// Manager holds the registry.
type Manager struct {
	storage storage.Storage
	logger  *slog.Logger

	mu   sync.RWMutex
	apps map[string]core.ProtectedApp // keyed by bundle identifier
}

// New loads the registry from storage.
func New(ctx context.Context, store storage.Storage, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		storage: store,
		logger:  logger.With("component", "registry"),
		apps:    make(map[string]core.ProtectedApp),
	}

	apps, err := store.ListApps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load protected apps: %w", err)
	}
	for _, app := range apps {
		m.apps[app.BundleID] = *app
	}
	m.logger.Info("registry loaded", "apps", len(m.apps))
	return m, nil
}

// Lookup returns the entry for a bundle identifier, enabled or not.
func (m *Manager) Lookup(bundleID string) (core.ProtectedApp, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.apps[bundleID]
	return app, ok
}

// List returns all entries ordered by creation time.
func (m *Manager) List() []core.ProtectedApp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	apps := make([]core.ProtectedApp, 0, len(m.apps))
	for _, app := range m.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps
}

// Add protects a new application.
func (m *Manager) Add(ctx context.Context, bundleID, name, path string, autoClose bool) (core.ProtectedApp, error) {
	if core.IsExempt(bundleID) {
		return core.ProtectedApp{}, ErrExemptApp
	}

	app := core.ProtectedApp{
		ID:        idgen.NewApp(),
		BundleID:  bundleID,
		Name:      name,
		Path:      path,
		Enabled:   true,
		AutoClose: autoClose,
	}
	if err := app.Validate(); err != nil {
		return core.ProtectedApp{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.apps[bundleID]; exists {
		return core.ProtectedApp{}, core.ErrAppExists
	}
	if err := m.storage.CreateApp(ctx, &app); err != nil {
		return core.ProtectedApp{}, err
	}
	m.apps[bundleID] = app
	m.logger.Info("protected app added", "bundle_id", bundleID, "name", name)
	return app, nil
}

// Remove deletes an entry by its registry ID.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.byID(id)
	if !ok {
		return core.ErrAppNotFound
	}
	if err := m.storage.DeleteApp(ctx, id); err != nil {
		return err
	}
	delete(m.apps, app.BundleID)
	m.logger.Info("protected app removed", "bundle_id", app.BundleID)
	return nil
}

// Patch applies mutate to the entry's mutable flags and persists it.
func (m *Manager) Patch(ctx context.Context, id string, mutate func(*core.ProtectedApp)) (core.ProtectedApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.byID(id)
	if !ok {
		return core.ProtectedApp{}, core.ErrAppNotFound
	}
	mutate(&app)
	if err := m.storage.UpdateApp(ctx, &app); err != nil {
		return core.ProtectedApp{}, err
	}
	m.apps[app.BundleID] = app
	return app, nil
}

// byID requires m.mu held.
func (m *Manager) byID(id string) (core.ProtectedApp, bool) {
	for _, app := range m.apps {
		if app.ID == id {
			return app, true
		}
	}
	return core.ProtectedApp{}, false
}
