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

// CustomerRepo manages the customers table.
type CustomerRepo struct {
	db *store.DB
}

// NewCustomerRepo creates a customer repository over an opened store.
func NewCustomerRepo(db *store.DB) *CustomerRepo {
	return &CustomerRepo{db: db}
}

// Kind implements Repository.
func (r *CustomerRepo) Kind() model.Kind {
	return model.KindCustomers
}

const upsertCustomerQuery = `
INSERT INTO customers (
	id, name, phone, email, address, region,
	created_at, updated_at, sync_status, local_changes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	phone = excluded.phone,
	email = excluded.email,
	address = excluded.address,
	region = excluded.region,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	sync_status = excluded.sync_status,
	local_changes = excluded.local_changes
`

// UpsertRemote implements Repository.
func (r *CustomerRepo) UpsertRemote(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	customers := make([]*model.Customer, 0, len(records))
	for _, rec := range records {
		customer, ok := rec.(*model.Customer)
		if !ok {
			return fmt.Errorf("expected customer record, got %T", rec)
		}
		if err := customer.Validate(); err != nil {
			return fmt.Errorf("invalid customer %q: %w", customer.ID, err)
		}
		customers = append(customers, customer)
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, customer := range customers {
			localAt, exists, err := localUpdatedAt(ctx, tx, "customers", customer.ID)
			if err != nil {
				return err
			}
			if exists && !customer.UpdatedAt.After(localAt) {
				continue
			}

			_, err = tx.ExecContext(ctx, upsertCustomerQuery,
				customer.ID,
				customer.Name,
				customer.Phone,
				customer.Email,
				customer.Address,
				customer.Region,
				customer.CreatedAt.Format(time.RFC3339),
				customer.UpdatedAt.Format(time.RFC3339),
				string(model.StatusSynced),
				"",
			)
			if err != nil {
				return fmt.Errorf("failed to upsert customer %s: %w", customer.ID, err)
			}
		}
		return nil
	})
}

// SaveLocal stores a customer mutated on this device, marked pending.
func (r *CustomerRepo) SaveLocal(ctx context.Context, customer *model.Customer) error {
	customer.ID = newLocalID(customer)
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	customer.SyncStatus = model.StatusPending

	if err := customer.Validate(); err != nil {
		return fmt.Errorf("invalid customer %q: %w", customer.ID, err)
	}

	diff, err := localDiff(customer)
	if err != nil {
		return err
	}
	customer.LocalChanges = diff

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertCustomerQuery,
			customer.ID,
			customer.Name,
			customer.Phone,
			customer.Email,
			customer.Address,
			customer.Region,
			customer.CreatedAt.Format(time.RFC3339),
			customer.UpdatedAt.Format(time.RFC3339),
			string(model.StatusPending),
			diff,
		)
		if err != nil {
			return fmt.Errorf("failed to save customer %s: %w", customer.ID, err)
		}
		return nil
	})
}

// Count implements Repository.
func (r *CustomerRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "customers")
}

const selectCustomerColumns = `
SELECT id, name, phone, email, address, region,
       created_at, updated_at, sync_status, local_changes
FROM customers
`

// GetByID retrieves a single customer.
// Returns sql.ErrNoRows if the customer is not found.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	row := r.db.RawDB().QueryRowContext(ctx, selectCustomerColumns+"WHERE id = ?", id)
	return scanCustomer(row)
}

// ListByRegion retrieves customers in a region, newest first.
func (r *CustomerRepo) ListByRegion(ctx context.Context, region string, limit, offset int) ([]*model.Customer, error) {
	var conditions []string
	var args []interface{}

	if region != "" {
		conditions = append(conditions, "region = ?")
		args = append(args, region)
	}

	query := selectCustomerColumns
	if len(conditions) > 0 {
		query += "WHERE " + strings.Join(conditions, " AND ") + "\n"
	}
	query += "ORDER BY updated_at DESC, id ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else if offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unbounded
		query += " LIMIT -1"
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := r.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*model.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return customers, nil
}

// DeleteCustomersFilter configures DeleteAll. The zero value matches every
// customer.
type DeleteCustomersFilter struct {
	// Region matches customers in this region (empty = all)
	Region string
	// SyncStatus matches customers in this sync state (empty = all)
	SyncStatus string
}

// DeleteAll removes every customer matching the filter in one transaction
// and returns the number of rows deleted.
func (r *CustomerRepo) DeleteAll(ctx context.Context, filter DeleteCustomersFilter) (int64, error) {
	var conditions []string
	var args []interface{}

	if filter.Region != "" {
		conditions = append(conditions, "region = ?")
		args = append(args, filter.Region)
	}
	if filter.SyncStatus != "" {
		conditions = append(conditions, "sync_status = ?")
		args = append(args, filter.SyncStatus)
	}

	query := "DELETE FROM customers"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var deleted int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete customers: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Pending returns customers with unpushed local mutations.
func (r *CustomerRepo) Pending(ctx context.Context) ([]*model.Customer, error) {
	rows, err := r.db.RawDB().QueryContext(ctx,
		selectCustomerColumns+"WHERE sync_status = ? ORDER BY updated_at DESC",
		string(model.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending customers: %w", err)
	}
	defer rows.Close()

	var customers []*model.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending customers: %w", err)
	}
	return customers, nil
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var customer model.Customer
	var createdAt, updatedAt, syncStatus string

	err := row.Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.Address,
		&customer.Region,
		&createdAt,
		&updatedAt,
		&syncStatus,
		&customer.LocalChanges,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		customer.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		customer.UpdatedAt = t
	}
	customer.SyncStatus = model.SyncStatus(syncStatus)

	return &customer, nil
}
