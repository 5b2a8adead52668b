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

// QuotationRepo manages the quotations table.
type QuotationRepo struct {
	db *store.DB
}

// NewQuotationRepo creates a quotation repository over an opened store.
func NewQuotationRepo(db *store.DB) *QuotationRepo {
	return &QuotationRepo{db: db}
}

// Kind implements Repository.
func (r *QuotationRepo) Kind() model.Kind {
	return model.KindQuotations
}

const upsertQuotationQuery = `
INSERT INTO quotations (
	id, lead_id, customer_id, amount, currency, status, valid_until,
	created_at, updated_at, sync_status, local_changes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	lead_id = excluded.lead_id,
	customer_id = excluded.customer_id,
	amount = excluded.amount,
	currency = excluded.currency,
	status = excluded.status,
	valid_until = excluded.valid_until,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	sync_status = excluded.sync_status,
	local_changes = excluded.local_changes
`

// nullableFK turns an empty foreign key into NULL so optional references
// don't trip the indexes.
func nullableFK(id string) sql.NullString {
	if id == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: id, Valid: true}
}

// UpsertRemote implements Repository.
func (r *QuotationRepo) UpsertRemote(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	quotations := make([]*model.Quotation, 0, len(records))
	for _, rec := range records {
		quotation, ok := rec.(*model.Quotation)
		if !ok {
			return fmt.Errorf("expected quotation record, got %T", rec)
		}
		if err := quotation.Validate(); err != nil {
			return fmt.Errorf("invalid quotation %q: %w", quotation.ID, err)
		}
		quotations = append(quotations, quotation)
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, quotation := range quotations {
			localAt, exists, err := localUpdatedAt(ctx, tx, "quotations", quotation.ID)
			if err != nil {
				return err
			}
			if exists && !quotation.UpdatedAt.After(localAt) {
				continue
			}

			_, err = tx.ExecContext(ctx, upsertQuotationQuery,
				quotation.ID,
				nullableFK(quotation.LeadID),
				nullableFK(quotation.CustomerID),
				quotation.Amount,
				quotation.Currency,
				quotation.Status,
				timeToNullString(quotation.ValidUntil),
				quotation.CreatedAt.Format(time.RFC3339),
				quotation.UpdatedAt.Format(time.RFC3339),
				string(model.StatusSynced),
				"",
			)
			if err != nil {
				return fmt.Errorf("failed to upsert quotation %s: %w", quotation.ID, err)
			}
		}
		return nil
	})
}

// SaveLocal stores a quotation mutated on this device, marked pending.
func (r *QuotationRepo) SaveLocal(ctx context.Context, quotation *model.Quotation) error {
	quotation.ID = newLocalID(quotation)
	now := time.Now().UTC()
	if quotation.CreatedAt.IsZero() {
		quotation.CreatedAt = now
	}
	quotation.UpdatedAt = now
	quotation.SyncStatus = model.StatusPending

	if err := quotation.Validate(); err != nil {
		return fmt.Errorf("invalid quotation %q: %w", quotation.ID, err)
	}

	diff, err := localDiff(quotation)
	if err != nil {
		return err
	}
	quotation.LocalChanges = diff

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertQuotationQuery,
			quotation.ID,
			nullableFK(quotation.LeadID),
			nullableFK(quotation.CustomerID),
			quotation.Amount,
			quotation.Currency,
			quotation.Status,
			timeToNullString(quotation.ValidUntil),
			quotation.CreatedAt.Format(time.RFC3339),
			quotation.UpdatedAt.Format(time.RFC3339),
			string(model.StatusPending),
			diff,
		)
		if err != nil {
			return fmt.Errorf("failed to save quotation %s: %w", quotation.ID, err)
		}
		return nil
	})
}

// Count implements Repository.
func (r *QuotationRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "quotations")
}

const selectQuotationColumns = `
SELECT id, lead_id, customer_id, amount, currency, status, valid_until,
       created_at, updated_at, sync_status, local_changes
FROM quotations
`

// GetByID retrieves a single quotation.
// Returns sql.ErrNoRows if the quotation is not found.
func (r *QuotationRepo) GetByID(ctx context.Context, id string) (*model.Quotation, error) {
	row := r.db.RawDB().QueryRowContext(ctx, selectQuotationColumns+"WHERE id = ?", id)
	return scanQuotation(row)
}

// List returns all quotations, newest first.
func (r *QuotationRepo) List(ctx context.Context) ([]*model.Quotation, error) {
	return r.list(ctx, "")
}

// ListByLead returns quotations referencing the given lead.
func (r *QuotationRepo) ListByLead(ctx context.Context, leadID string) ([]*model.Quotation, error) {
	return r.list(ctx, "lead_id = ?", leadID)
}

// ListByCustomer returns quotations referencing the given customer.
func (r *QuotationRepo) ListByCustomer(ctx context.Context, customerID string) ([]*model.Quotation, error) {
	return r.list(ctx, "customer_id = ?", customerID)
}

// ListByStatus returns quotations in the given status.
func (r *QuotationRepo) ListByStatus(ctx context.Context, status string) ([]*model.Quotation, error) {
	return r.list(ctx, "status = ?", status)
}

// DeleteQuotationsFilter configures DeleteAll. The zero value matches every
// quotation.
type DeleteQuotationsFilter struct {
	// Status matches quotations in this status (empty = all)
	Status string
	// LeadID matches quotations referencing this lead (empty = all)
	LeadID string
	// CustomerID matches quotations referencing this customer (empty = all)
	CustomerID string
	// SyncStatus matches quotations in this sync state (empty = all)
	SyncStatus string
}

// DeleteAll removes every quotation matching the filter in one transaction
// and returns the number of rows deleted.
func (r *QuotationRepo) DeleteAll(ctx context.Context, filter DeleteQuotationsFilter) (int64, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.LeadID != "" {
		conditions = append(conditions, "lead_id = ?")
		args = append(args, filter.LeadID)
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.SyncStatus != "" {
		conditions = append(conditions, "sync_status = ?")
		args = append(args, filter.SyncStatus)
	}

	query := "DELETE FROM quotations"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var deleted int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete quotations: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Pending returns quotations with unpushed local mutations.
func (r *QuotationRepo) Pending(ctx context.Context) ([]*model.Quotation, error) {
	return r.list(ctx, "sync_status = ?", string(model.StatusPending))
}

func (r *QuotationRepo) list(ctx context.Context, condition string, args ...interface{}) ([]*model.Quotation, error) {
	query := selectQuotationColumns
	if condition != "" {
		query += "WHERE " + condition + "\n"
	}
	query += "ORDER BY updated_at DESC, id ASC"

	rows, err := r.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotations: %w", err)
	}
	defer rows.Close()

	var quotations []*model.Quotation
	for rows.Next() {
		quotation, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		quotations = append(quotations, quotation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotations: %w", err)
	}
	return quotations, nil
}

func scanQuotation(row rowScanner) (*model.Quotation, error) {
	var quotation model.Quotation
	var leadID, customerID, validUntil sql.NullString
	var createdAt, updatedAt, syncStatus string

	err := row.Scan(
		&quotation.ID,
		&leadID,
		&customerID,
		&quotation.Amount,
		&quotation.Currency,
		&quotation.Status,
		&validUntil,
		&createdAt,
		&updatedAt,
		&syncStatus,
		&quotation.LocalChanges,
	)
	if err != nil {
		return nil, err
	}

	if leadID.Valid {
		quotation.LeadID = leadID.String
	}
	if customerID.Valid {
		quotation.CustomerID = customerID.String
	}
	quotation.ValidUntil = nullStringToTime(validUntil)

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		quotation.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		quotation.UpdatedAt = t
	}
	quotation.SyncStatus = model.SyncStatus(syncStatus)

	return &quotation, nil
}
