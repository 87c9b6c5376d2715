package scheduler

import (
	"context"
	"time"

	"quorum/internal/logger"
)

// IntervalScheduler runs a task on a fixed cadence until the context is
// cancelled. Errors from the task are logged, never fatal: one bad cycle must
// not stop the loop.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool
}

func NewIntervalScheduler(name string, interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{Name: name, Interval: interval}
}

// Run blocks until ctx is done.
func (s *IntervalScheduler) Run(ctx context.Context, task func(context.Context) error) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	logger.Infof("scheduler[%s]: started interval=%s run_immediately=%v", s.Name, s.Interval, s.RunImmediately)

	runOnce := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Warnf("scheduler[%s]: cycle failed after %s: %v", s.Name, time.Since(start).Truncate(time.Millisecond), err)
		}
	}

	if s.RunImmediately {
		runOnce()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler[%s]: ctx done, exit", s.Name)
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
