// Package model defines the entity records managed by the sync core.
//
// Each entity kind (leads, customers, quotations) is a concrete struct that
// implements the Record interface. The shared columns (id, created_at,
// updated_at, sync_status, local_changes) drive conflict resolution and the
// pending-mutation bookkeeping; everything else is domain payload.
package model

import (
	"fmt"
	"time"
)

// Kind identifies one managed entity category.
type Kind string

const (
	KindLeads      Kind = "leads"
	KindCustomers  Kind = "customers"
	KindQuotations Kind = "quotations"
)

// Kinds returns all entity kinds in their fixed sync order.
//
// Quotations reference leads and customers by foreign key, so they must be
// synced last. Every sync cycle processes kinds in exactly this order.
func Kinds() []Kind {
	return []Kind{KindLeads, KindCustomers, KindQuotations}
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLeads, KindCustomers, KindQuotations:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind: %q", s)
}

// SyncStatus describes a row's relationship to the remote system-of-record.
type SyncStatus string

const (
	// StatusSynced means the row matches the last known remote copy.
	StatusSynced SyncStatus = "synced"

	// StatusPending means a local mutation has not been pushed upstream yet.
	StatusPending SyncStatus = "pending"

	// StatusFailed means the last push attempt for this row failed.
	StatusFailed SyncStatus = "failed"
)

// Record is the capability interface shared by all entity records.
//
// The repository layer's generic upsert logic only needs the primary key,
// the conflict-resolution timestamp, and validation; the concrete structs
// carry the rest.
type Record interface {
	// RecordID returns the globally unique primary key.
	RecordID() string

	// RecordUpdatedAt returns the timestamp that decides conflicts.
	// The copy with the strictly greater updated_at wins.
	RecordUpdatedAt() time.Time

	// RecordKind returns the entity kind this record belongs to.
	RecordKind() Kind

	// Validate checks required fields before the record is persisted.
	Validate() error
}

// Lead is a sales lead record.
type Lead struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Source     string `json:"source,omitempty"` // referral, campaign, walk-in, ...
	Status     string `json:"status"`           // new, contacted, qualified, converted, lost
	AssignedTo string `json:"assigned_to,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SyncStatus   SyncStatus `json:"sync_status,omitempty"`
	LocalChanges string     `json:"local_changes,omitempty"`
}

func (l *Lead) RecordID() string           { return l.ID }
func (l *Lead) RecordUpdatedAt() time.Time { return l.UpdatedAt }
func (l *Lead) RecordKind() Kind           { return KindLeads }

// Validate checks that the lead has the fields every persisted row needs.
func (l *Lead) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("lead id is required")
	}
	if l.Name == "" {
		return fmt.Errorf("lead name is required")
	}
	if l.Status == "" {
		return fmt.Errorf("lead status is required")
	}
	if l.UpdatedAt.IsZero() {
		return fmt.Errorf("lead updated_at is required")
	}
	return nil
}

// Customer is a converted, billable customer record.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Region  string `json:"region,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SyncStatus   SyncStatus `json:"sync_status,omitempty"`
	LocalChanges string     `json:"local_changes,omitempty"`
}

func (c *Customer) RecordID() string           { return c.ID }
func (c *Customer) RecordUpdatedAt() time.Time { return c.UpdatedAt }
func (c *Customer) RecordKind() Kind           { return KindCustomers }

// Validate checks that the customer has the fields every persisted row needs.
func (c *Customer) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("customer id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("customer name is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("customer updated_at is required")
	}
	return nil
}

// Quotation is a priced offer attached to a lead and/or customer.
type Quotation struct {
	ID         string `json:"id"`
	LeadID     string `json:"lead_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Amount     int64  `json:"amount"` // minor currency units
	Currency   string `json:"currency"`
	Status     string `json:"status"` // draft, sent, accepted, rejected, expired

	ValidUntil *time.Time `json:"valid_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	SyncStatus   SyncStatus `json:"sync_status,omitempty"`
	LocalChanges string     `json:"local_changes,omitempty"`
}

func (q *Quotation) RecordID() string           { return q.ID }
func (q *Quotation) RecordUpdatedAt() time.Time { return q.UpdatedAt }
func (q *Quotation) RecordKind() Kind           { return KindQuotations }

// Validate checks that the quotation has the fields every persisted row needs.
func (q *Quotation) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quotation id is required")
	}
	if q.Currency == "" {
		return fmt.Errorf("quotation currency is required")
	}
	if q.Amount < 0 {
		return fmt.Errorf("quotation amount must not be negative (got %d)", q.Amount)
	}
	if q.Status == "" {
		return fmt.Errorf("quotation status is required")
	}
	if q.UpdatedAt.IsZero() {
		return fmt.Errorf("quotation updated_at is required")
	}
	return nil
}
