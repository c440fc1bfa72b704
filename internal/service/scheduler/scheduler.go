// Package scheduler runs the periodic ledger reconciliation job that
// verifies aggregates against ledger replay and rebuilds the diverged ones.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/givehub/discovery-engine/internal/config"
	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// Reconciler is the reconciliation entry point of the points service.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (checked, repaired int, err error)
}

// Scheduler wraps a cron runner around the reconciliation job.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	cfg        config.SchedulerConfig
	log        *logger.Logger
}

// New creates a scheduler from config. Returns an error when the timezone or
// cron expression cannot be parsed.
func New(cfg config.SchedulerConfig, reconciler Reconciler, log *logger.Logger) (*Scheduler, error) {
	location, err := cfg.GetLocation()
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:       cron.New(cron.WithLocation(location)),
		reconciler: reconciler,
		cfg:        cfg,
		log:        log,
	}

	if _, err := s.cron.AddFunc(cfg.ReconciliationCron, s.runReconciliation); err != nil {
		return nil, fmt.Errorf("invalid reconciliation cron %q: %w", cfg.ReconciliationCron, err)
	}
	return s, nil
}

// Start begins cron scheduling. No-op when the scheduler is disabled.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.log.Info().Msg("Scheduler disabled, reconciliation will not run automatically")
		return
	}
	s.cron.Start()
	s.log.Info().Str("cron", s.cfg.ReconciliationCron).Str("timezone", s.cfg.Timezone).Msg("Reconciliation scheduler started")
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunNow triggers one reconciliation pass outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (checked, repaired int, err error) {
	return s.reconciler.ReconcileAll(ctx)
}

func (s *Scheduler) runReconciliation() {
	start := time.Now()
	checked, repaired, err := s.reconciler.ReconcileAll(context.Background())
	prommetrics.ScoringDurationSeconds.WithLabelValues("reconciliation").Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).Msg("Ledger reconciliation failed")
		return
	}
	s.log.Info().
		Int("checked", checked).
		Int("repaired", repaired).
		Dur("took", time.Since(start)).
		Msg("Ledger reconciliation finished")
}
