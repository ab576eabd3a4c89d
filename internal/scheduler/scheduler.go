// Package scheduler runs a review job on a cron cadence. Used by
// `reldo watch --schedule`.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/reldo-dev/reldo/internal/logging"
)

// Scheduler runs one job on a recurring schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// New creates a scheduler for the given standard 5-field cron expression.
// The expression is validated eagerly.
func New(expr string, job func()) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		logger: logging.Component("scheduler"),
	}
	if _, err := s.cron.AddFunc(expr, job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Debug("scheduler started")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Debug("scheduler stopped")
}
