package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/store"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return New(db)
}

func TestLedger_GetByKind_NeverSynced(t *testing.T) {
	l := testLedger(t)

	entry, err := l.GetByKind(context.Background(), model.KindLeads)
	if err != nil {
		t.Fatalf("GetByKind() failed: %v", err)
	}
	if entry != nil {
		t.Errorf("GetByKind() = %+v, want nil for never-synced kind", entry)
	}
}

func TestLedger_MarkStarted_CreatesLazily(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	if err := l.MarkStarted(ctx, model.KindLeads); err != nil {
		t.Fatalf("MarkStarted() failed: %v", err)
	}

	entry, err := l.GetByKind(ctx, model.KindLeads)
	if err != nil {
		t.Fatalf("GetByKind() failed: %v", err)
	}
	if entry == nil {
		t.Fatal("GetByKind() = nil, want lazily created entry")
	}
	if entry.Status != StatusInProgress {
		t.Errorf("status = %q, want %q", entry.Status, StatusInProgress)
	}
	if entry.LastSyncAt.IsZero() {
		t.Error("last_sync_timestamp is zero")
	}
}

func TestLedger_MarkStarted_PreservesRecordCount(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	if err := l.MarkCompleted(ctx, model.KindLeads, 42); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	if err := l.MarkStarted(ctx, model.KindLeads); err != nil {
		t.Fatalf("MarkStarted() failed: %v", err)
	}

	entry, err := l.GetByKind(ctx, model.KindLeads)
	if err != nil {
		t.Fatalf("GetByKind() failed: %v", err)
	}
	if entry.RecordCount != 42 {
		t.Errorf("record_count during in_progress = %d, want 42", entry.RecordCount)
	}
}

func TestLedger_Lifecycle(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	if err := l.MarkStarted(ctx, model.KindCustomers); err != nil {
		t.Fatalf("MarkStarted() failed: %v", err)
	}
	if err := l.MarkCompleted(ctx, model.KindCustomers, 7); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	entry, err := l.GetByKind(ctx, model.KindCustomers)
	if err != nil {
		t.Fatalf("GetByKind() failed: %v", err)
	}
	if entry.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", entry.Status, StatusCompleted)
	}
	if entry.RecordCount != 7 {
		t.Errorf("record_count = %d, want 7", entry.RecordCount)
	}
	if entry.ErrorMessage != "" {
		t.Errorf("error_message = %q, want empty", entry.ErrorMessage)
	}

	if err := l.MarkFailed(ctx, model.KindCustomers, "server returned 503"); err != nil {
		t.Fatalf("MarkFailed() failed: %v", err)
	}

	entry, err = l.GetByKind(ctx, model.KindCustomers)
	if err != nil {
		t.Fatalf("GetByKind() failed: %v", err)
	}
	if entry.Status != StatusFailed {
		t.Errorf("status = %q, want %q", entry.Status, StatusFailed)
	}
	if entry.ErrorMessage != "server returned 503" {
		t.Errorf("error_message = %q, want failure detail", entry.ErrorMessage)
	}
}

func TestLedger_MarkFailed_RefreshesTimestamp(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	if err := l.MarkCompleted(ctx, model.KindLeads, 3); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	l.now = func() time.Time { return base.Add(time.Hour) }
	if err := l.MarkFailed(ctx, model.KindLeads, "boom"); err != nil {
		t.Fatalf("MarkFailed() failed: %v", err)
	}

	entry, err := l.GetByKind(ctx, model.KindLeads)
	if err != nil {
		t.Fatalf("GetByKind() failed: %v", err)
	}
	if !entry.LastSyncAt.Equal(base.Add(time.Hour)) {
		t.Errorf("last_sync_timestamp = %v, want refreshed on failure", entry.LastSyncAt)
	}
}

func TestLedger_List(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	if err := l.MarkCompleted(ctx, model.KindQuotations, 1); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	if err := l.MarkCompleted(ctx, model.KindLeads, 2); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	entries, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	// Ordered by entity_kind
	if entries[0].Kind != model.KindLeads || entries[1].Kind != model.KindQuotations {
		t.Errorf("List() order = [%s, %s], want [leads, quotations]", entries[0].Kind, entries[1].Kind)
	}
}

func TestLedger_IsStale(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	// Never synced -> stale
	stale, err := l.IsStale(ctx, model.KindLeads, time.Hour)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if !stale {
		t.Error("never-synced kind should be stale")
	}

	// Fresh completion -> not stale
	if err := l.MarkCompleted(ctx, model.KindLeads, 5); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	stale, err = l.IsStale(ctx, model.KindLeads, time.Hour)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if stale {
		t.Error("freshly completed kind should not be stale")
	}

	// Failed -> stale regardless of age
	if err := l.MarkFailed(ctx, model.KindLeads, "boom"); err != nil {
		t.Fatalf("MarkFailed() failed: %v", err)
	}
	stale, err = l.IsStale(ctx, model.KindLeads, time.Hour)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if !stale {
		t.Error("failed kind should be stale")
	}

	// Old completion -> stale once past maxAge
	if err := l.MarkCompleted(ctx, model.KindLeads, 5); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	l.now = func() time.Time { return base.Add(2 * time.Hour) }
	stale, err = l.IsStale(ctx, model.KindLeads, time.Hour)
	if err != nil {
		t.Fatalf("IsStale() failed: %v", err)
	}
	if !stale {
		t.Error("completion older than maxAge should be stale")
	}
}
