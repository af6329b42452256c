package audit

import (
	"context"
	"sync"
)

// Appender persists a single record. Implementations must never update or
// delete previously appended records.
type Appender interface {
	Append(ctx context.Context, rec *Record) error
}

// AppenderFunc adapts a function to Appender
type AppenderFunc func(ctx context.Context, rec *Record) error

// Append calls f
func (f AppenderFunc) Append(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// Reader lists previously appended records, newest first
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// Recorder is the fire-and-forget entry point used by privilege-changing
// operations. Record never reports failure to the caller.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Record) {}

// NopRecorder returns a Recorder that drops everything
func NopRecorder() Recorder {
	return nopRecorder{}
}

// MemoryAppender keeps records in memory. Err, when set, is returned from
// every Append instead of storing the record.
type MemoryAppender struct {
	mu      sync.Mutex
	records []Record
	nextID  int64
	Err     error
}

// NewMemoryAppender creates an empty MemoryAppender
func NewMemoryAppender() *MemoryAppender {
	return &MemoryAppender{}
}

// Append stores a copy of rec
func (m *MemoryAppender) Append(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, *rec)
	return nil
}

// SetErr makes subsequent appends fail with err (nil restores success)
func (m *MemoryAppender) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

// Records returns a snapshot of stored records in append order
func (m *MemoryAppender) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// List returns matching records newest first
func (m *MemoryAppender) List(ctx context.Context, filter Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.EffectiveLimit()
	out := make([]Record, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := m.records[i]
		if filter.ActorID != "" && rec.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
