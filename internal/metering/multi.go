package metering

import (
	"context"
	"errors"

	"github.com/clinical-decision-support-server/internal/domain"
)

// MultiSink records usage to every sink in order. All sinks are attempted; their errors
// are joined.
type MultiSink []domain.UsageSink

// RecordUsage implements domain.UsageSink
func (m MultiSink) RecordUsage(ctx context.Context, record *domain.UsageRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.RecordUsage(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
