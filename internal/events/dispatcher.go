package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/smart-ratings/internal/logging"
	"github.com/Clark-Hu/smart-ratings/internal/monitoring"
)

const defaultPublishTimeout = 5 * time.Second

// Dispatcher buffers events and fans them out to every publisher from a
// single background goroutine. Emit never blocks: when the buffer is full the
// event is dropped and counted.
type Dispatcher struct {
	publishers     []Publisher
	queue          chan RatingCommitted
	publishTimeout time.Duration
	logger         zerolog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given buffer capacity.
func NewDispatcher(bufferSize int, publishers ...Publisher) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Dispatcher{
		publishers:     publishers,
		queue:          make(chan RatingCommitted, bufferSize),
		publishTimeout: defaultPublishTimeout,
		logger:         logging.NewLogger("events"),
	}
}

// Start launches the delivery goroutine. Calling Start twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.run()
	d.logger.Info().Int("publishers", len(d.publishers)).Int("buffer", cap(d.queue)).Msg("event dispatcher started")
}

// Stop stops accepting events, drains what is buffered, and waits for the
// delivery goroutine to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
	d.logger.Info().Msg("event dispatcher stopped")
}

// Emit enqueues evt for delivery without blocking.
func (d *Dispatcher) Emit(evt RatingCommitted) {
	d.TryEmit(evt)
}

// TryEmit is Emit reporting whether the event was enqueued.
func (d *Dispatcher) TryEmit(evt RatingCommitted) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || len(d.publishers) == 0 {
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		monitoring.RecordEventDropped()
		d.logger.Warn().
			Str("entity_id", evt.EntityID).
			Str("category_id", evt.CategoryID).
			Str("rating_id", evt.RatingID).
			Msg("event buffer full, dropping rating committed event")
		return false
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt RatingCommitted) {
	for _, p := range d.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
		err := p.Publish(ctx, evt)
		cancel()
		if err != nil {
			monitoring.RecordEventPublished(p.Name(), "error")
			d.logger.Error().
				Err(err).
				Str("sink", p.Name()).
				Str("rating_id", evt.RatingID).
				Msg("publish rating committed event")
			continue
		}
		monitoring.RecordEventPublished(p.Name(), "ok")
	}
}
