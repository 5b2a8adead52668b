package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fieldaxis/fieldsync/internal/ledger"
	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/repo"
	"github.com/fieldaxis/fieldsync/internal/store"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

type fakeFetcher struct {
	records map[model.Kind][]model.Record
}

func (f *fakeFetcher) FetchRecords(_ context.Context, kind model.Kind) ([]model.Record, error) {
	return f.records[kind], nil
}

func newTestServer(t *testing.T) (*Server, *syncer.Orchestrator) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	repos := []repo.Repository{
		repo.NewLeadRepo(db),
		repo.NewCustomerRepo(db),
		repo.NewQuotationRepo(db),
	}
	led := ledger.New(db)
	now := time.Now().UTC().Truncate(time.Second)
	fetcher := &fakeFetcher{records: map[model.Kind][]model.Record{
		model.KindLeads: {&model.Lead{
			ID:        "lead-1",
			Name:      "Test Lead",
			Status:    "new",
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now,
		}},
	}}
	orch := syncer.New(repos, led, fetcher, nil, nil)

	srv := New("127.0.0.1:0", orch, led, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	return srv, orch
}

func TestServer_StartStop(t *testing.T) {
	srv, _ := newTestServer(t)
	if srv.Addr() == "" {
		t.Fatal("Addr() is empty after Start()")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestServer_SyncStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/sync/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	var status syncer.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.IsRunning {
		t.Error("IsRunning = true for idle engine")
	}
}

func TestServer_TriggerSync(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post("http://"+srv.Addr()+"/api/v1/sync/trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("trigger request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger status = %d, want 200", resp.StatusCode)
	}
	var result syncer.SyncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !result.Success {
		t.Errorf("triggered sync failed: %s", result.Err)
	}
	if result.RecordCounts[model.KindLeads] != 1 {
		t.Errorf("leads count = %d, want 1", result.RecordCounts[model.KindLeads])
	}
}

func TestServer_SyncStateAfterSync(t *testing.T) {
	srv, orch := newTestServer(t)

	if result := orch.Sync(context.Background(), syncer.TriggerManual); !result.Success {
		t.Fatalf("Sync() failed: %s", result.Err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/sync/state")
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	defer resp.Body.Close()

	var entries []*ledger.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if len(entries) != len(model.Kinds()) {
		t.Fatalf("got %d ledger entries, want %d", len(entries), len(model.Kinds()))
	}
	for _, e := range entries {
		if e.Status != ledger.StatusCompleted {
			t.Errorf("kind %s status = %q, want completed", e.Kind, e.Status)
		}
	}
}

func TestServer_CancelWithoutCycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post("http://"+srv.Addr()+"/api/v1/sync/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding cancel body: %v", err)
	}
	if body["cancelled"] {
		t.Error("cancelled = true with no running cycle")
	}
}

func TestServer_WebSocketReceivesSyncEvents(t *testing.T) {
	srv, orch := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server to register the client
	deadline := time.After(2 * time.Second)
	for srv.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if result := orch.Sync(context.Background(), syncer.TriggerManual); !result.Success {
		t.Fatalf("Sync() failed: %s", result.Err)
	}

	var types []string
	for len(types) < 2 {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("websocket read failed: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		types = append(types, msg.Type)
	}

	want := []string{string(syncer.EventSyncStarted), string(syncer.EventSyncFinished)}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("event types = %v, want %v", types, want)
	}
}

func TestServer_MultipleClients(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	for i := 0; i < numClients; i++ {
		conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
		if err != nil {
			t.Fatalf("client %d dial failed: %v", i, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
	}

	deadline := time.After(2 * time.Second)
	for srv.ClientCount() != numClients {
		select {
		case <-deadline:
			t.Fatalf("ClientCount() = %d, want %d", srv.ClientCount(), numClients)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
