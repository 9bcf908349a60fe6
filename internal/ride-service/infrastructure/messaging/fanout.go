package messaging

import (
	"context"
	"errors"

	"ride-share/internal/ride-service/domain"
)

// Fanout publishes every event to each notifier in order. One failing
// notifier does not stop the others.
type Fanout []domain.EventNotifier

func (f Fanout) Publish(ctx context.Context, event domain.DomainEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
