// Package scheduler triggers periodic sync cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldaxis/fieldsync/internal/config"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

// SyncFunc runs one sync cycle. The orchestrator's Sync method satisfies it.
type SyncFunc func(ctx context.Context, trigger syncer.Trigger) *syncer.SyncResult

type Scheduler struct {
	cfg     config.SchedulerConfig
	sync    SyncFunc
	cron    *cron.Cron
	logger  *zap.Logger
	entryID cron.EntryID
}

func New(cfg config.SchedulerConfig, sync SyncFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		sync:   sync,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the sync job and begins the cron loop. It is a no-op
// when the scheduler is disabled in config.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	id, err := s.cron.AddFunc(s.cfg.Cron, s.run)
	if err != nil {
		return fmt.Errorf("failed to schedule sync job %q: %w", s.cfg.Cron, err)
	}
	s.entryID = id
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("cron", s.cfg.Cron))
	return nil
}

func (s *Scheduler) run() {
	result := s.sync(context.Background(), syncer.TriggerScheduled)
	if result.Success {
		s.logger.Info("scheduled sync completed",
			zap.Any("record_counts", result.RecordCounts))
		return
	}
	if result.Err == syncer.OfflineError {
		s.logger.Info("scheduled sync skipped, device offline")
		return
	}
	s.logger.Warn("scheduled sync failed", zap.String("error", result.Err))
}

// Stop halts the cron loop and waits for a running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
