package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MertBaran/QA-API-sub001/pkg/observability"
)

// DefaultSweepSchedule runs the sweep every five minutes.
const DefaultSweepSchedule = "@every 5m"

// Expirer deactivates assignments whose expiry has passed.
type Expirer interface {
	DeactivateExpiredRoles(ctx context.Context) (int64, error)
}

// Sweeper runs the expiry sweep on a cron schedule. Overlapping runs are
// skipped and a panicking run is logged without stopping the scheduler.
type Sweeper struct {
	expirer Expirer
	timeout time.Duration
	cron    *cron.Cron
	settings
}

// NewSweeper creates a sweeper. Each run is bounded by timeout.
func NewSweeper(expirer Expirer, timeout time.Duration, opts ...Option) *Sweeper {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Sweeper{
		expirer:  expirer,
		timeout:  timeout,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		settings: newSettings(opts),
	}
}

// Start schedules the sweep. An empty schedule uses DefaultSweepSchedule.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("expiry sweep scheduled")
	return nil
}

// Stop halts scheduling and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	defer observability.RecoverPanic(s.logger, "expiry sweep")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("expiry sweep failed")
	}
}

// RunOnce performs a single sweep and returns how many assignments were
// deactivated.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.expirer.DeactivateExpiredRoles(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(map[string]interface{}{
		"deactivated": n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("expiry sweep completed")
	return n, nil
}
