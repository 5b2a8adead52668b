package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldaxis/fieldsync/internal/config"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

func TestScheduler_Disabled(t *testing.T) {
	var calls atomic.Int32
	s := New(config.SchedulerConfig{Enabled: false, Cron: "@every 1ms"},
		func(context.Context, syncer.Trigger) *syncer.SyncResult {
			calls.Add(1)
			return &syncer.SyncResult{Success: true}
		}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("disabled scheduler ran sync %d times, want 0", n)
	}
}

func TestScheduler_InvalidCron(t *testing.T) {
	s := New(config.SchedulerConfig{Enabled: true, Cron: "not a cron spec"},
		func(context.Context, syncer.Trigger) *syncer.SyncResult {
			return &syncer.SyncResult{Success: true}
		}, nil)

	if err := s.Start(); err == nil {
		t.Fatal("Start() succeeded with invalid cron spec, want error")
	}
}

func TestScheduler_TriggersScheduledSync(t *testing.T) {
	var calls atomic.Int32
	var gotTrigger atomic.Value
	s := New(config.SchedulerConfig{Enabled: true, Cron: "@every 10ms"},
		func(_ context.Context, trigger syncer.Trigger) *syncer.SyncResult {
			gotTrigger.Store(trigger)
			calls.Add(1)
			return &syncer.SyncResult{Success: true}
		}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never triggered a sync")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if trig, _ := gotTrigger.Load().(syncer.Trigger); trig != syncer.TriggerScheduled {
		t.Errorf("trigger = %q, want %q", trig, syncer.TriggerScheduled)
	}
}

func TestScheduler_StopPreventsFurtherRuns(t *testing.T) {
	var calls atomic.Int32
	s := New(config.SchedulerConfig{Enabled: true, Cron: "@every 10ms"},
		func(context.Context, syncer.Trigger) *syncer.SyncResult {
			calls.Add(1)
			return &syncer.SyncResult{Success: true}
		}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never triggered a sync")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("sync ran after Stop(): %d -> %d", after, calls.Load())
	}
}
