package audit

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/assessor/pkg/async"
	"github.com/platinummonkey/assessor/pkg/observability"
)

// AsyncRecorder hands records to a background dispatcher. The primary
// operation never waits for, nor learns about, the outcome of the append;
// failures surface only through logs and metrics.
type AsyncRecorder struct {
	appender   Appender
	dispatcher *async.Dispatcher
	clock      clockwork.Clock
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// RecorderOption configures an AsyncRecorder
type RecorderOption func(*AsyncRecorder)

// WithClock sets the clock used to stamp records lacking a timestamp
func WithClock(clock clockwork.Clock) RecorderOption {
	return func(r *AsyncRecorder) { r.clock = clock }
}

// WithLogger sets the sink for append failures
func WithLogger(logger *observability.Logger) RecorderOption {
	return func(r *AsyncRecorder) { r.logger = logger }
}

// WithMetrics enables append outcome counters
func WithMetrics(metrics *observability.Metrics) RecorderOption {
	return func(r *AsyncRecorder) { r.metrics = metrics }
}

// NewAsyncRecorder creates a recorder appending through dispatcher
func NewAsyncRecorder(appender Appender, dispatcher *async.Dispatcher, opts ...RecorderOption) *AsyncRecorder {
	r := &AsyncRecorder{
		appender:   appender,
		dispatcher: dispatcher,
		clock:      clockwork.NewRealClock(),
		logger:     observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("audit")
	return r
}

// Record schedules rec for appending and returns immediately
func (r *AsyncRecorder) Record(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.clock.Now().UTC()
	}

	log := r.logger.WithFields(map[string]interface{}{
		"actor_id": rec.ActorID,
		"action":   string(rec.Action),
	})

	if err := rec.Validate(); err != nil {
		log.WithError(err).Error("dropping invalid audit record")
		r.count(rec.Action, "invalid")
		return
	}

	err := r.dispatcher.Submit(ctx, "audit:"+string(rec.Action), func(ctx context.Context) error {
		if err := r.appender.Append(ctx, &rec); err != nil {
			log.WithError(err).Warn("audit append failed")
			r.count(rec.Action, "failure")
			return nil
		}
		r.count(rec.Action, "success")
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("audit record not dispatched")
		r.count(rec.Action, "dropped")
		if r.metrics != nil {
			r.metrics.AuditQueueDropsTotal.Inc()
		}
	}
}

// Flush waits for every dispatched record to finish appending
func (r *AsyncRecorder) Flush() {
	r.dispatcher.Flush()
}

func (r *AsyncRecorder) count(action Action, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.AuditRecordsTotal.WithLabelValues(string(action), outcome).Inc()
}
