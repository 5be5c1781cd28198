package notify

import (
	"context"
	"errors"
)

// Fanout publishes each event to every sink in order.
// All sinks are attempted; their errors are joined.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
