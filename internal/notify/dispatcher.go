package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrClosed is returned by Dispatcher.Publish after Close.
var ErrClosed = errors.New("notify: dispatcher closed")

// Dispatcher decouples publishers from a slow or failing downstream Sink.
//
// Publish only enqueues. A single goroutine running Run delivers events to
// the downstream sink in FIFO order; delivery errors are logged and dropped.
type Dispatcher struct {
	next   Sink
	queue  *eventQueue
	logger *slog.Logger
	done   chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for delivery failures.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a dispatcher delivering to next.
func NewDispatcher(next Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:   next,
		queue:  newEventQueue(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish enqueues ev for delivery. It never blocks on the downstream sink.
func (d *Dispatcher) Publish(_ context.Context, ev Event) error {
	if !d.queue.Enqueue(ev) {
		return ErrClosed
	}
	return nil
}

// Pending returns the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Run delivers queued events until ctx is cancelled or Close is called.
// After Close, events already queued are still delivered before Run returns.
// Must be called from exactly one goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)
	d.logger.Debug("dispatcher starting")

	for {
		if ev, ok := d.queue.TryDequeue(); ok {
			d.deliver(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			d.queue.Close()
			d.logger.Debug("dispatcher stopping: context cancelled", "dropped", d.queue.Len())
			return ctx.Err()
		case <-d.queue.Wait():
			// The signal channel is closed once the queue is closed.
			if d.queue.isClosed() && d.queue.Len() == 0 {
				d.logger.Debug("dispatcher stopping: closed")
				return nil
			}
		}
	}
}

// Close stops accepting events. Run drains what is queued and returns.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	if err := d.next.Publish(ctx, ev); err != nil {
		d.logger.Warn("event delivery failed",
			"type", ev.Type,
			"seq", ev.Seq,
			"key", ev.Key(),
			"error", err,
		)
	}
}
