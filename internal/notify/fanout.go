package notify

import (
	"context"
	"errors"
	"fmt"

	"memocare/internal/reminder"
)

// Fanout publishes to every child. All children are tried; their errors are
// joined. A disabled Delivery child is skipped silently.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ownerID string, ev reminder.DueEvent) error {
	var errs []error
	for i, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ownerID, ev); err != nil {
			if errors.Is(err, ErrDisabled) {
				continue
			}
			errs = append(errs, fmt.Errorf("publisher %d (%T): %w", i, p, err))
		}
	}
	return errors.Join(errs...)
}
