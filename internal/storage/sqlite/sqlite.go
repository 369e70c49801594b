package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goodtune/playtime/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface on an SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Usage returns the usage store.
func (s *Store) Usage() storage.UsageStore {
	return &usageStore{db: s.db}
}

// runMigrations applies every migration newer than the recorded version, in order.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, migration); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations are applied in slice order; version is index + 1.
var migrations = []string{
	`
	CREATE TABLE usage_records (
		label TEXT PRIMARY KEY,
		overall_minutes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE usage_user_minutes (
		label TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		minutes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (label, subject_id),
		FOREIGN KEY (label) REFERENCES usage_records(label)
	);

	CREATE TABLE usage_log (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		minutes_added INTEGER NOT NULL
	);
	`,
	`
	CREATE INDEX idx_usage_log_occurred ON usage_log(occurred_at DESC);
	CREATE INDEX idx_usage_log_subject ON usage_log(subject_id, occurred_at DESC);
	CREATE INDEX idx_usage_log_label ON usage_log(label, occurred_at DESC);
	`,
}
