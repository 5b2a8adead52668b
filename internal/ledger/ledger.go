// Package ledger persists per-kind sync metadata: when each entity kind last
// synced, how it went, and how many records it carried.
//
// The ledger is the single source of truth for sync health. It is written
// only by the sync orchestrator and read by the status CLI, the dashboard,
// and staleness checks. Rows are created lazily on the first sync attempt
// for a kind and are never deleted in normal operation.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/store"
)

// Status of one kind's most recent sync attempt.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is the metadata record for one entity kind.
type Entry struct {
	Kind         model.Kind `json:"entity_kind"`
	LastSyncAt   time.Time  `json:"last_sync_timestamp"`
	Status       Status     `json:"sync_status"`
	RecordCount  int        `json:"record_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Ledger reads and writes sync_state rows.
type Ledger struct {
	db *store.DB

	// now is swappable for tests
	now func() time.Time
}

// New creates a ledger over an opened store.
func New(db *store.DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const upsertStateQuery = `
INSERT INTO sync_state (
	entity_kind, last_sync_timestamp, sync_status, record_count, error_message, updated_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(entity_kind) DO UPDATE SET
	last_sync_timestamp = excluded.last_sync_timestamp,
	sync_status = excluded.sync_status,
	record_count = excluded.record_count,
	error_message = excluded.error_message,
	updated_at = excluded.updated_at
`

func (l *Ledger) write(ctx context.Context, kind model.Kind, status Status, count int, errMsg string) error {
	now := l.now().Format(time.RFC3339)
	_, err := l.db.RawDB().ExecContext(ctx, upsertStateQuery,
		string(kind), now, string(status), count, errMsg, now)
	if err != nil {
		return fmt.Errorf("failed to write sync state for %s: %w", kind, err)
	}
	return nil
}

// MarkStarted records that a sync attempt for the kind is in progress.
// The previous record count is preserved so status readers don't see a
// momentary zero while a cycle runs.
func (l *Ledger) MarkStarted(ctx context.Context, kind model.Kind) error {
	prev, err := l.GetByKind(ctx, kind)
	if err != nil {
		return err
	}
	count := 0
	if prev != nil {
		count = prev.RecordCount
	}
	return l.write(ctx, kind, StatusInProgress, count, "")
}

// MarkCompleted records a successful sync with the resulting record count.
func (l *Ledger) MarkCompleted(ctx context.Context, kind model.Kind, recordCount int) error {
	return l.write(ctx, kind, StatusCompleted, recordCount, "")
}

// MarkFailed records a failed sync attempt with its error message.
func (l *Ledger) MarkFailed(ctx context.Context, kind model.Kind, errMsg string) error {
	return l.write(ctx, kind, StatusFailed, 0, errMsg)
}

// GetByKind returns the metadata for a kind, or nil when the kind has never
// been synced.
func (l *Ledger) GetByKind(ctx context.Context, kind model.Kind) (*Entry, error) {
	row := l.db.RawDB().QueryRowContext(ctx, `
		SELECT entity_kind, last_sync_timestamp, sync_status, record_count, error_message, updated_at
		FROM sync_state WHERE entity_kind = ?`, string(kind))

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state for %s: %w", kind, err)
	}
	return entry, nil
}

// List returns metadata for every kind that has ever been synced.
func (l *Ledger) List(ctx context.Context) ([]*Entry, error) {
	rows, err := l.db.RawDB().QueryContext(ctx, `
		SELECT entity_kind, last_sync_timestamp, sync_status, record_count, error_message, updated_at
		FROM sync_state ORDER BY entity_kind ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync state: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync state: %w", err)
	}
	return entries, nil
}

// IsStale reports whether the kind's data should not be trusted: no sync has
// ever happened, the last attempt failed, or the last success is older than
// maxAge.
func (l *Ledger) IsStale(ctx context.Context, kind model.Kind, maxAge time.Duration) (bool, error) {
	entry, err := l.GetByKind(ctx, kind)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return true, nil
	}
	if entry.Status == StatusFailed {
		return true, nil
	}
	return l.now().Sub(entry.LastSyncAt) > maxAge, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var kind, lastSync, status, updatedAt string

	err := row.Scan(&kind, &lastSync, &status, &entry.RecordCount, &entry.ErrorMessage, &updatedAt)
	if err != nil {
		return nil, err
	}

	entry.Kind = model.Kind(kind)
	entry.Status = Status(status)
	if t, err := time.Parse(time.RFC3339, lastSync); err == nil {
		entry.LastSyncAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		entry.UpdatedAt = t
	}
	return &entry, nil
}
