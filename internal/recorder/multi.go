package recorder

import (
	"context"
	"errors"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// MultiRecorder fans every row out to all wrapped recorders. Each write
// goes to every backend even when an earlier one fails; the errors come
// back joined.
type MultiRecorder struct {
	recorders []domain.Recorder
}

// NewMulti wraps the given recorders. Nil entries are skipped.
func NewMulti(recorders ...domain.Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// RecordPrivateTrade implements domain.Recorder.
func (m *MultiRecorder) RecordPrivateTrade(ctx context.Context, row domain.PrivateTradeRow) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.RecordPrivateTrade(ctx, row))
	}
	return errors.Join(errs...)
}

// RecordOrderUpdate implements domain.Recorder.
func (m *MultiRecorder) RecordOrderUpdate(ctx context.Context, row domain.OrderUpdateRow) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.RecordOrderUpdate(ctx, row))
	}
	return errors.Join(errs...)
}

// RecordBalance implements domain.Recorder.
func (m *MultiRecorder) RecordBalance(ctx context.Context, row domain.BalanceRow) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.RecordBalance(ctx, row))
	}
	return errors.Join(errs...)
}

// RecordSummary implements domain.Recorder.
func (m *MultiRecorder) RecordSummary(ctx context.Context, row domain.SummaryRow) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.RecordSummary(ctx, row))
	}
	return errors.Join(errs...)
}

// Close closes every wrapped recorder.
func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
