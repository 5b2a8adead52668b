// Package repo provides typed repositories over the entity store, one per
// entity kind.
//
// Each repository knows how to map a remote record to a local row and how to
// apply a bulk upsert with server-wins conflict resolution: an incoming row
// replaces the local copy only when its updated_at is strictly greater. The
// whole batch runs inside a single transaction, so a failure on any record
// aborts every write in the batch.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/store"
)

// Repository is the per-kind surface the sync orchestrator drives.
type Repository interface {
	// Kind returns the entity kind this repository manages.
	Kind() model.Kind

	// UpsertRemote applies a batch of remote records atomically.
	//
	// Per record: insert when no local row exists; replace the full row when
	// the remote updated_at is strictly greater than the local one; skip
	// otherwise. Rows written from remote records are marked synced with no
	// local changes. A zero-length batch is a no-op and succeeds trivially.
	UpsertRemote(ctx context.Context, records []model.Record) error

	// Count returns the number of local rows for this kind.
	Count(ctx context.Context) (int, error)
}

// localUpdatedAt reads the conflict timestamp of an existing row inside the
// enclosing transaction. Returns exists=false when there is no local row.
func localUpdatedAt(ctx context.Context, tx *sql.Tx, table, id string) (time.Time, bool, error) {
	var raw string
	query := fmt.Sprintf("SELECT updated_at FROM %s WHERE id = ?", table)
	err := tx.QueryRowContext(ctx, query, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read local updated_at for %s/%s: %w", table, id, err)
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse local updated_at for %s/%s: %w", table, id, err)
	}
	return t, true, nil
}

// countRows returns the row count of a table.
func countRows(ctx context.Context, db *store.DB, table string) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := db.RawDB().QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// newLocalID returns the record's id, assigning a fresh one for records
// created locally before they ever reach the server.
func newLocalID(rec model.Record) string {
	if id := rec.RecordID(); id != "" {
		return id
	}
	return uuid.NewString()
}

// localDiff serializes a locally mutated record for the local_changes column.
// The diff is opaque to the sync core; a future push cycle replays it.
func localDiff(rec model.Record) (string, error) {
	diff, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize local changes: %w", err)
	}
	return string(diff), nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
