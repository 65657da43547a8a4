// Package scheduler periodically refreshes the dashboard's active location.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Refresher re-issues the active location; ok is false when none is set.
type Refresher interface {
	Refresh(ctx context.Context) (generation uint64, ok bool)
}

// Scheduler runs Refresh on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Refresher
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. A non-positive interval disables it.
func New(target Refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		target:    target,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first refresh fires one interval after Start.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: refresh interval not set; periodic refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).
		WaitForSchedule().
		SingletonMode().
		Do(s.refresh)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler. Refreshes already issued keep running in the coordinator.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) refresh() {
	gen, ok := s.target.Refresh(context.Background())
	if !ok {
		s.logger.Debug("scheduler: no active location; skipping refresh")
		return
	}
	observability.ScheduledRefreshesTotal.Inc()
	s.logger.Debug("scheduled refresh issued", zap.Uint64("generation", gen))
}
