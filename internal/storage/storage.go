package storage

import (
	"context"

	"appguard/internal/core"
)

// Storage defines the interface for data persistence.
type Storage interface {
	// Protected apps
	CreateApp(ctx context.Context, app *core.ProtectedApp) error
	GetApp(ctx context.Context, id string) (*core.ProtectedApp, error)
	GetAppByBundleID(ctx context.Context, bundleID string) (*core.ProtectedApp, error)
	ListApps(ctx context.Context) ([]*core.ProtectedApp, error)
	UpdateApp(ctx context.Context, app *core.ProtectedApp) error
	DeleteApp(ctx context.Context, id string) error

	// Paired companion (at most one)
	GetCompanion(ctx context.Context) (*core.PairedCompanion, error)
	SetCompanion(ctx context.Context, companion core.PairedCompanion) error
	DeleteCompanion(ctx context.Context) error

	// Backup secret hash (at most one)
	GetSecretHash(ctx context.Context) ([]byte, error)
	SetSecretHash(ctx context.Context, hash []byte) error
	DeleteSecretHash(ctx context.Context) error

	// Lifecycle
	Close() error
}
