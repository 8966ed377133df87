package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"appguard/internal/core"
)

// SQLiteStorage implements storage.Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance.
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return storage, nil
}

// migrate creates the database schema.
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS protected_apps (
			id TEXT PRIMARY KEY,
			bundle_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			auto_close INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_protected_apps_bundle ON protected_apps(bundle_id);

		CREATE TABLE IF NOT EXISTS companion (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			address TEXT NOT NULL,
			name TEXT NOT NULL,
			paired_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS secret (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			hash BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateApp inserts a protected app entry.
func (s *SQLiteStorage) CreateApp(ctx context.Context, app *core.ProtectedApp) error {
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO protected_apps (id, bundle_id, name, path, enabled, auto_close, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.BundleID, app.Name, app.Path, app.Enabled, app.AutoClose, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrAppExists
		}
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

// GetApp fetches an entry by ID.
func (s *SQLiteStorage) GetApp(ctx context.Context, id string) (*core.ProtectedApp, error) {
	return s.getApp(ctx, "id = ?", id)
}

// GetAppByBundleID fetches an entry by bundle identifier.
func (s *SQLiteStorage) GetAppByBundleID(ctx context.Context, bundleID string) (*core.ProtectedApp, error) {
	return s.getApp(ctx, "bundle_id = ?", bundleID)
}

func (s *SQLiteStorage) getApp(ctx context.Context, where string, arg any) (*core.ProtectedApp, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bundle_id, name, path, enabled, auto_close, created_at, updated_at
		FROM protected_apps WHERE `+where, arg)

	app := &core.ProtectedApp{}
	err := row.Scan(&app.ID, &app.BundleID, &app.Name, &app.Path, &app.Enabled, &app.AutoClose, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

// ListApps returns all entries ordered by creation time.
func (s *SQLiteStorage) ListApps(ctx context.Context) ([]*core.ProtectedApp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bundle_id, name, path, enabled, auto_close, created_at, updated_at
		FROM protected_apps ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var apps []*core.ProtectedApp
	for rows.Next() {
		app := &core.ProtectedApp{}
		if err := rows.Scan(&app.ID, &app.BundleID, &app.Name, &app.Path, &app.Enabled, &app.AutoClose, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateApp updates the mutable fields of an entry.
func (s *SQLiteStorage) UpdateApp(ctx context.Context, app *core.ProtectedApp) error {
	app.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE protected_apps SET name = ?, path = ?, enabled = ?, auto_close = ?, updated_at = ?
		WHERE id = ?`,
		app.Name, app.Path, app.Enabled, app.AutoClose, app.UpdatedAt, app.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrAppNotFound
	}
	return nil
}

// DeleteApp removes an entry.
func (s *SQLiteStorage) DeleteApp(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM protected_apps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrAppNotFound
	}
	return nil
}

// GetCompanion returns the paired companion, or nil when unpaired.
func (s *SQLiteStorage) GetCompanion(ctx context.Context) (*core.PairedCompanion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT address, name, paired_at FROM companion WHERE id = 1`)
	companion := &core.PairedCompanion{}
	err := row.Scan(&companion.Address, &companion.Name, &companion.PairedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get companion: %w", err)
	}
	return companion, nil
}

// SetCompanion stores or replaces the paired companion.
func (s *SQLiteStorage) SetCompanion(ctx context.Context, companion core.PairedCompanion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companion (id, address, name, paired_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET address = excluded.address, name = excluded.name, paired_at = excluded.paired_at`,
		companion.Address, companion.Name, companion.PairedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set companion: %w", err)
	}
	return nil
}

// DeleteCompanion removes the pairing.
func (s *SQLiteStorage) DeleteCompanion(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM companion WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete companion: %w", err)
	}
	return nil
}

// GetSecretHash returns the stored backup secret hash, or nil when unset.
func (s *SQLiteStorage) GetSecretHash(ctx context.Context) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT hash FROM secret WHERE id = 1`)
	var hash []byte
	err := row.Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret hash: %w", err)
	}
	return hash, nil
}

// SetSecretHash stores or replaces the backup secret hash.
func (s *SQLiteStorage) SetSecretHash(ctx context.Context, hash []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secret (id, hash, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
		hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set secret hash: %w", err)
	}
	return nil
}

// DeleteSecretHash removes the backup secret.
func (s *SQLiteStorage) DeleteSecretHash(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secret WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete secret hash: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
