package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fieldaxis/fieldsync/internal/ledger"
	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/remote"
	"github.com/fieldaxis/fieldsync/internal/repo"
)

// Trigger labels who asked for a sync cycle. Triggers only affect logging
// and telemetry; the cycle itself treats them identically.
type Trigger string

const (
	TriggerManual       Trigger = "manual"
	TriggerScheduled    Trigger = "scheduled"
	TriggerPostMutation Trigger = "post-mutation"
)

// OfflineError is the result error when the connectivity probe says no.
const OfflineError = "OFFLINE"

// Fetcher retrieves all remote records of one kind. remote.Client satisfies
// this; tests inject fakes.
type Fetcher interface {
	FetchRecords(ctx context.Context, kind model.Kind) ([]model.Record, error)
}

// SyncResult is the aggregate outcome of one sync cycle. Concurrent callers
// that joined an in-flight cycle all receive the same *SyncResult value.
type SyncResult struct {
	Success      bool               `json:"success"`
	RecordCounts map[model.Kind]int `json:"record_counts"`
	Err          string             `json:"error,omitempty"`
	Trigger      Trigger            `json:"trigger"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// Status is a diagnostics snapshot of the orchestrator.
type Status struct {
	IsRunning      bool `json:"is_running"`
	HasActiveCycle bool `json:"has_active_cycle"`
	ListenerCount  int  `json:"listener_count"`
}

// Orchestrator owns the end-to-end sync cycle: the single-flight lock, the
// per-kind fetch/persist sequence, the empty-response safeguard, the sync
// metadata ledger, and the lifecycle event stream.
//
// Construct one per local store and pass it by reference to whoever triggers
// syncs (CLI, scheduler, post-mutation hooks). There is no global instance.
type Orchestrator struct {
	repos   []repo.Repository
	ledger  *ledger.Ledger
	fetcher Fetcher
	probe   remote.Probe
	logger  *zap.Logger
	bus     *Bus

	group singleflight.Group

	mu        sync.Mutex
	running   bool
	cancelled bool
	waiters   int
}

// New creates an orchestrator.
//
// repos must be in the declared sync order (leads, customers, quotations)
// so foreign-key references are satisfied by the time dependent rows are
// written. If probe is nil the orchestrator assumes it is online. If logger
// is nil a no-op logger is used.
func New(repos []repo.Repository, led *ledger.Ledger, fetcher Fetcher, probe remote.Probe, logger *zap.Logger) *Orchestrator {
	if probe == nil {
		probe = func() bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		repos:   repos,
		ledger:  led,
		fetcher: fetcher,
		probe:   probe,
		logger:  logger,
		bus:     NewBus(logger),
	}
}

// On registers a lifecycle event handler. See Bus.On.
func (o *Orchestrator) On(event Event, handler Handler) func() {
	return o.bus.On(event, handler)
}

// GetSyncStatus returns a diagnostics snapshot.
func (o *Orchestrator) GetSyncStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		IsRunning:      o.running,
		HasActiveCycle: o.waiters > 0,
		ListenerCount:  o.bus.ListenerCount(),
	}
}

// CancelSync requests cancellation of the in-flight cycle.
//
// Cancellation is cooperative: it takes effect at the next kind boundary,
// never mid-transaction, so whatever transaction is in progress completes
// (commit or rollback) first. Returns false when no cycle is running.
func (o *Orchestrator) CancelSync() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return false
	}
	o.cancelled = true
	return true
}

// Sync runs one sync cycle, or joins the cycle already in flight.
//
// Sync never returns an error: every failure path resolves to a SyncResult
// with Success=false and a human-readable Err. When the connectivity probe
// reports offline, Sync returns immediately with Err "OFFLINE" - no lock is
// taken, no events fire, no metadata is touched.
//
// All concurrent callers that arrive while a cycle is running receive the
// identical *SyncResult once that cycle completes; the remote fetch runs at
// most once per kind per cycle.
func (o *Orchestrator) Sync(ctx context.Context, trigger Trigger) *SyncResult {
	if !o.probe() {
		o.logger.Info("sync skipped: offline", zap.String("trigger", string(trigger)))
		return &SyncResult{
			Success:      false,
			RecordCounts: map[model.Kind]int{},
			Err:          OfflineError,
			Trigger:      trigger,
		}
	}

	o.mu.Lock()
	o.waiters++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.waiters--
		o.mu.Unlock()
	}()

	v, _, _ := o.group.Do("sync", func() (interface{}, error) {
		return o.runCycle(ctx, trigger), nil
	})
	return v.(*SyncResult)
}

// isCancelled reads the cooperative cancel flag.
func (o *Orchestrator) isCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// runCycle executes the full per-kind sequence. Exactly one runCycle is
// active at any time; singleflight guarantees it.
func (o *Orchestrator) runCycle(ctx context.Context, trigger Trigger) *SyncResult {
	o.mu.Lock()
	o.running = true
	o.cancelled = false
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	result := &SyncResult{
		RecordCounts: make(map[model.Kind]int),
		Trigger:      trigger,
		StartedAt:    time.Now().UTC(),
	}

	o.logger.Info("sync cycle started", zap.String("trigger", string(trigger)))
	o.bus.Emit(Payload{Event: EventSyncStarted, Trigger: trigger})

	for _, r := range o.repos {
		if o.isCancelled() {
			return o.fail(result, "sync cancelled")
		}

		kind := r.Kind()
		if err := o.ledger.MarkStarted(ctx, kind); err != nil {
			// Bookkeeping only; the cycle itself decides success
			o.logger.Warn("failed to mark sync started", zap.String("kind", string(kind)), zap.Error(err))
		}

		records, err := o.fetcher.FetchRecords(ctx, kind)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				o.markFailed(ctx, kind, err.Error())
				o.logger.Error("sync aborted: authentication failure", zap.String("kind", string(kind)), zap.Error(err))
				return o.fail(result, err.Error())
			}

			// Isolated to this kind; the cycle continues
			o.markFailed(ctx, kind, err.Error())
			result.RecordCounts[kind] = 0
			o.logger.Warn("fetch failed, continuing with next kind", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}

		if len(records) == 0 {
			localCount, err := r.Count(ctx)
			if err != nil {
				msg := fmt.Sprintf("persistence failed: counting %s: %v", kind, err)
				o.markFailed(ctx, kind, msg)
				return o.fail(result, msg)
			}
			if localCount > 0 {
				// Empty-response safeguard: a transient empty payload must
				// not be read as "delete everything"
				o.logger.Info("empty remote payload, keeping local rows",
					zap.String("kind", string(kind)), zap.Int("local_count", localCount))
				o.markCompleted(ctx, kind, localCount)
				result.RecordCounts[kind] = localCount
				continue
			}

			o.markCompleted(ctx, kind, 0)
			result.RecordCounts[kind] = 0
			continue
		}

		if err := r.UpsertRemote(ctx, records); err != nil {
			msg := fmt.Sprintf("persistence failed: %v", err)
			o.markFailed(ctx, kind, msg)
			o.logger.Error("sync aborted: persistence failure", zap.String("kind", string(kind)), zap.Error(err))
			return o.fail(result, msg)
		}

		o.markCompleted(ctx, kind, len(records))
		result.RecordCounts[kind] = len(records)
		o.logger.Info("kind synced", zap.String("kind", string(kind)), zap.Int("count", len(records)))
	}

	result.Success = true
	result.FinishedAt = time.Now().UTC()
	o.logger.Info("sync cycle finished", zap.Any("counts", result.RecordCounts))
	o.bus.Emit(Payload{Event: EventSyncFinished, Trigger: trigger, Result: result})
	return result
}

// fail finalizes a fatally aborted cycle.
func (o *Orchestrator) fail(result *SyncResult, msg string) *SyncResult {
	result.Success = false
	result.Err = msg
	result.FinishedAt = time.Now().UTC()
	o.bus.Emit(Payload{Event: EventSyncFailed, Trigger: result.Trigger, Result: result})
	return result
}

func (o *Orchestrator) markCompleted(ctx context.Context, kind model.Kind, count int) {
	if err := o.ledger.MarkCompleted(ctx, kind, count); err != nil {
		o.logger.Warn("failed to mark sync completed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, kind model.Kind, msg string) {
	if err := o.ledger.MarkFailed(ctx, kind, msg); err != nil {
		o.logger.Warn("failed to mark sync failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
