package event

import (
	"context"
	"errors"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
)

// MultiPublisher fans an event out to several publishers. Every publisher
// is tried; the failures are joined.
type MultiPublisher []tenancy.EventPublisher

// Publish implements tenancy.EventPublisher
func (m MultiPublisher) Publish(ctx context.Context, event *tenancy.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
