package audit

import (
	"context"
	"errors"
)

// MultiAppender appends to several destinations in order. Every
// destination is attempted even when an earlier one fails; the first
// appender is treated as the system of record and its generated id wins.
type MultiAppender struct {
	appenders []Appender
}

// NewMultiAppender creates a fan-out appender
func NewMultiAppender(appenders ...Appender) *MultiAppender {
	return &MultiAppender{appenders: appenders}
}

// Append writes rec to every destination and joins their errors
func (m *MultiAppender) Append(ctx context.Context, rec *Record) error {
	var errs []error
	var id int64
	for i, a := range m.appenders {
		if err := a.Append(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 {
			id = rec.ID
		}
	}
	rec.ID = id
	return errors.Join(errs...)
}
