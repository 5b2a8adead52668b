// Package store provides the embedded SQLite database shared by all
// repositories and the sync metadata ledger.
//
// The database runs fully embedded (ncruces/go-sqlite3, wasm build) with WAL
// mode so UI-driven readers keep working while a sync cycle writes. One table
// per entity kind plus the sync_state ledger table; the schema is created
// lazily and idempotently.
//
// Atomicity contract: all multi-row writes go through WithTx. Any error
// inside the transaction function rolls the whole transaction back, so a
// reader never observes a half-written upsert batch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with sync-core specific functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the file doesn't exist it is created; call InitSchema before first use.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// WAL mode keeps UI readers unblocked during sync writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection for repositories.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This creates the three entity tables and the sync_state ledger table along
// with the indexes the repository queries need. Idempotent - safe to call
// multiple times.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY CHECK (id <> ''),
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'synced',
		local_changes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY CHECK (id <> ''),
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'synced',
		local_changes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS quotations (
		id TEXT PRIMARY KEY CHECK (id <> ''),
		lead_id TEXT,
		customer_id TEXT,
		amount INTEGER NOT NULL CHECK (amount >= 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		valid_until TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'synced',
		local_changes TEXT NOT NULL DEFAULT ''
	);

	-- Per-kind sync metadata, written only by the sync orchestrator
	CREATE TABLE IF NOT EXISTS sync_state (
		entity_kind TEXT PRIMARY KEY,
		last_sync_timestamp TEXT NOT NULL,
		sync_status TEXT NOT NULL,  -- in_progress, completed, failed
		record_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
	CREATE INDEX IF NOT EXISTS idx_leads_sync_status ON leads(sync_status);
	CREATE INDEX IF NOT EXISTS idx_customers_region ON customers(region);
	CREATE INDEX IF NOT EXISTS idx_customers_sync_status ON customers(sync_status);
	CREATE INDEX IF NOT EXISTS idx_quotations_lead ON quotations(lead_id);
	CREATE INDEX IF NOT EXISTS idx_quotations_customer ON quotations(customer_id);
	CREATE INDEX IF NOT EXISTS idx_quotations_status ON quotations(status);
	CREATE INDEX IF NOT EXISTS idx_quotations_sync_status ON quotations(sync_status);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// WithTx runs fn inside a single transaction.
//
// If fn returns an error the transaction is rolled back and the error is
// returned wrapped; otherwise the transaction is committed. This is the
// atomicity primitive for all multi-row writes: either every statement fn
// executed is visible, or none of them are.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
