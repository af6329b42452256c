package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/assessor/pkg/observability"
)

// DefaultSweepSchedule runs the sweep every ten minutes
const DefaultSweepSchedule = "@every 10m"

// Janitor periodically stamps ended_at on expired impersonation sessions
type Janitor struct {
	sweeper Sweeper
	cron    *cron.Cron
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewJanitor schedules sweeps of sweeper on a standard five-field cron
// schedule or a cron descriptor such as "@every 10m". metrics may be nil.
func NewJanitor(sweeper Sweeper, schedule string, logger *observability.Logger, metrics *observability.Metrics) (*Janitor, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	j := &Janitor{
		sweeper: sweeper,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		timeout: 30 * time.Second,
		logger:  logger.WithComponent("janitor"),
		metrics: metrics,
	}
	if _, err := j.cron.AddFunc(schedule, func() {
		_, _ = j.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce performs a single sweep
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	n, err := j.sweeper.SweepExpiredSessions(ctx)
	if err != nil {
		j.logger.WithError(err).Warn("expired session sweep failed")
		return 0, err
	}
	if n > 0 {
		j.logger.WithField("count", n).Info("swept expired impersonation sessions")
	}
	if j.metrics != nil {
		j.metrics.ExpiredSessionsSwept.Add(float64(n))
	}
	return n, nil
}

// Start begins the schedule in the background
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to expire.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
