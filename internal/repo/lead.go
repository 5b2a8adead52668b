package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/store"
)

// LeadRepo manages the leads table.
type LeadRepo struct {
	db *store.DB
}

// NewLeadRepo creates a lead repository over an opened store.
func NewLeadRepo(db *store.DB) *LeadRepo {
	return &LeadRepo{db: db}
}

// Kind implements Repository.
func (r *LeadRepo) Kind() model.Kind {
	return model.KindLeads
}

const upsertLeadQuery = `
INSERT INTO leads (
	id, name, phone, email, source, status, assigned_to,
	created_at, updated_at, sync_status, local_changes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	phone = excluded.phone,
	email = excluded.email,
	source = excluded.source,
	status = excluded.status,
	assigned_to = excluded.assigned_to,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	sync_status = excluded.sync_status,
	local_changes = excluded.local_changes
`

// UpsertRemote implements Repository.
//
// Each remote lead replaces the local row only when strictly newer by
// updated_at; equal or older remote copies are skipped so unchanged rows are
// never rewritten. The whole batch is one transaction.
func (r *LeadRepo) UpsertRemote(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	leads := make([]*model.Lead, 0, len(records))
	for _, rec := range records {
		lead, ok := rec.(*model.Lead)
		if !ok {
			return fmt.Errorf("expected lead record, got %T", rec)
		}
		if err := lead.Validate(); err != nil {
			return fmt.Errorf("invalid lead %q: %w", lead.ID, err)
		}
		leads = append(leads, lead)
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, lead := range leads {
			localAt, exists, err := localUpdatedAt(ctx, tx, "leads", lead.ID)
			if err != nil {
				return err
			}
			if exists && !lead.UpdatedAt.After(localAt) {
				continue // local copy is as new or newer
			}

			_, err = tx.ExecContext(ctx, upsertLeadQuery,
				lead.ID,
				lead.Name,
				lead.Phone,
				lead.Email,
				lead.Source,
				lead.Status,
				lead.AssignedTo,
				lead.CreatedAt.Format(time.RFC3339),
				lead.UpdatedAt.Format(time.RFC3339),
				string(model.StatusSynced),
				"",
			)
			if err != nil {
				return fmt.Errorf("failed to upsert lead %s: %w", lead.ID, err)
			}
		}
		return nil
	})
}

// SaveLocal stores a lead mutated on this device.
//
// The row is marked pending with the serialized record kept as local_changes
// so a later push cycle can replay it. A missing id is assigned.
func (r *LeadRepo) SaveLocal(ctx context.Context, lead *model.Lead) error {
	lead.ID = newLocalID(lead)
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	lead.SyncStatus = model.StatusPending

	if err := lead.Validate(); err != nil {
		return fmt.Errorf("invalid lead %q: %w", lead.ID, err)
	}

	diff, err := localDiff(lead)
	if err != nil {
		return err
	}
	lead.LocalChanges = diff

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertLeadQuery,
			lead.ID,
			lead.Name,
			lead.Phone,
			lead.Email,
			lead.Source,
			lead.Status,
			lead.AssignedTo,
			lead.CreatedAt.Format(time.RFC3339),
			lead.UpdatedAt.Format(time.RFC3339),
			string(model.StatusPending),
			diff,
		)
		if err != nil {
			return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
		}
		return nil
	})
}

// Count implements Repository.
func (r *LeadRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "leads")
}

const selectLeadColumns = `
SELECT id, name, phone, email, source, status, assigned_to,
       created_at, updated_at, sync_status, local_changes
FROM leads
`

// GetByID retrieves a single lead.
// Returns sql.ErrNoRows if the lead is not found.
func (r *LeadRepo) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	row := r.db.RawDB().QueryRowContext(ctx, selectLeadColumns+"WHERE id = ?", id)
	return scanLead(row)
}

// ListLeadsFilter configures the List query.
type ListLeadsFilter struct {
	// Status filters by lead status (empty = all)
	Status string
	// AssignedTo filters by assignee (empty = all)
	AssignedTo string
	// SyncStatus filters by sync status (empty = all)
	SyncStatus string
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// List retrieves leads matching the given filters, newest first.
func (r *LeadRepo) List(ctx context.Context, filter ListLeadsFilter) ([]*model.Lead, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.SyncStatus != "" {
		conditions = append(conditions, "sync_status = ?")
		args = append(args, filter.SyncStatus)
	}

	query := selectLeadColumns
	if len(conditions) > 0 {
		query += "WHERE " + strings.Join(conditions, " AND ") + "\n"
	}
	query += "ORDER BY updated_at DESC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unbounded
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var leads []*model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", err)
	}
	return leads, nil
}

// Pending returns leads with unpushed local mutations.
func (r *LeadRepo) Pending(ctx context.Context) ([]*model.Lead, error) {
	return r.List(ctx, ListLeadsFilter{SyncStatus: string(model.StatusPending)})
}

// DeleteLeadsFilter configures DeleteAll. The zero value matches every lead.
type DeleteLeadsFilter struct {
	// Status matches leads in this status (empty = all)
	Status string
	// AssignedTo matches leads assigned to this rep (empty = all)
	AssignedTo string
	// SyncStatus matches leads in this sync state (empty = all)
	SyncStatus string
}

// DeleteAll removes every lead matching the filter in one transaction and
// returns the number of rows deleted.
func (r *LeadRepo) DeleteAll(ctx context.Context, filter DeleteLeadsFilter) (int64, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.SyncStatus != "" {
		conditions = append(conditions, "sync_status = ?")
		args = append(args, filter.SyncStatus)
	}

	query := "DELETE FROM leads"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var deleted int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete leads: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*model.Lead, error) {
	var lead model.Lead
	var createdAt, updatedAt, syncStatus string

	err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Phone,
		&lead.Email,
		&lead.Source,
		&lead.Status,
		&lead.AssignedTo,
		&createdAt,
		&updatedAt,
		&syncStatus,
		&lead.LocalChanges,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		lead.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		lead.UpdatedAt = t
	}
	lead.SyncStatus = model.SyncStatus(syncStatus)

	return &lead, nil
}
