package events

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/booking-platform/pkg/logging"
)

var (
	// ErrQueueFull is returned by Dispatcher.Publish when the buffer is full.
	ErrQueueFull = errors.New("events: dispatch queue full")
	// ErrDispatcherClosed is returned by Dispatcher.Publish after Close or
	// once the workers' context is cancelled.
	ErrDispatcherClosed = errors.New("events: dispatcher closed")
)

// Dispatcher delivers events to a handler on background workers. Publish
// never blocks; when the queue is full the event is dropped.
type Dispatcher struct {
	handler Handler
	logger  *logging.Logger
	queue   chan BookingEvent
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(handler Handler, buffer int, logger *logging.Logger) *Dispatcher {
	if handler == nil {
		panic("events: handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{handler: handler, logger: logger, queue: make(chan BookingEvent, buffer), workers: 1}
}

// WithWorkers sets the number of delivery goroutines.
func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, evt BookingEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- evt:
		return nil
	default:
		d.logger.Warn("dropping booking event", "event_id", evt.EventID, "type", evt.Type)
		return ErrQueueFull
	}
}

// Start launches the workers. Once ctx is cancelled the dispatcher stops
// accepting events and the workers exit after draining the queue. Close
// stops them too.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx)
		}()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case evt, ok := <-d.queue:
			if !ok {
				return
			}
			d.handle(ctx, evt)
		case <-ctx.Done():
			d.stopAccepting()
			for {
				select {
				case evt, ok := <-d.queue:
					if !ok {
						return
					}
					d.handle(context.WithoutCancel(ctx), evt)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) stopAccepting() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Dispatcher) handle(ctx context.Context, evt BookingEvent) {
	if err := d.handler.Handle(ctx, evt); err != nil {
		d.logger.Error("booking event handler failed", "error", err, "event_id", evt.EventID, "type", evt.Type)
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
