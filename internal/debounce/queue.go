package debounce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/metrics"
	"github.com/copperbear/storefront/internal/otel"
)

const DefaultWindow = 300 * time.Millisecond

// SendFunc performs the upstream write for an item's latest quantity.
type SendFunc func(c context.Context, itemID uuid.UUID, quantity int) error

// ErrorFunc is invoked when a send fails, after the in-flight guard has
// been released.
type ErrorFunc func(c context.Context, itemID uuid.UUID, err error)

// Queue coalesces rapid quantity updates into one upstream write per item
// per debounce window. Timers are independent per item; an item with an
// in-flight write queues at most one follow-up carrying the latest value.
type Queue struct {
	mu      sync.Mutex
	window  time.Duration
	send    SendFunc
	onError ErrorFunc
	entries map[uuid.UUID]*entry
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
}

type entry struct {
	timer    *time.Timer
	latest   int
	inFlight bool
	pending  bool
}

type Option func(*Queue)

func WithWindow(window time.Duration) Option {
	return func(q *Queue) { q.window = window }
}

func WithErrorFunc(onError ErrorFunc) Option {
	return func(q *Queue) { q.onError = onError }
}

// NewQueue binds the queue to c; sends outlive the mutation request that
// scheduled them but not the agent itself.
func NewQueue(c context.Context, send SendFunc, opts ...Option) *Queue {
	q := &Queue{
		window:  DefaultWindow,
		send:    send,
		entries: map[uuid.UUID]*entry{},
		baseCtx: c,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule records the latest requested quantity for itemID and resets the
// item's debounce timer. Only the last value scheduled inside a window is
// sent.
func (q *Queue) Schedule(c context.Context, itemID uuid.UUID, quantity int) error {
	_, span := otel.Tracer.Start(c, "Queue Schedule")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Queue Schedule").
		Str(log.KeyItemID, itemID.String()).
		Int(log.KeyQuantity, quantity).
		Logger()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		otel.RecordError(inErrors.ErrStoreClosed, span)
		return inErrors.ErrStoreClosed
	}

	metrics.DebounceScheduled.Inc()
	e, ok := q.entries[itemID]
	if !ok {
		e = &entry{}
		q.entries[itemID] = e
	}
	e.latest = quantity
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(q.window, func() { q.fire(itemID) })
	logger.Trace().Msg("scheduled debounced quantity write")
	return nil
}

// Flush short-circuits the timer and sends the item's latest value now.
func (q *Queue) Flush(itemID uuid.UUID) {
	q.mu.Lock()
	e, ok := q.entries[itemID]
	if ok && e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	q.mu.Unlock()
	if ok {
		q.fire(itemID)
	}
}

// Close cancels every pending timer and waits for in-flight writes to
// settle. Pending values that never fired are dropped, matching teardown
// semantics: no writes after shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) fire(itemID uuid.UUID) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	e, ok := q.entries[itemID]
	if !ok {
		q.mu.Unlock()
		return
	}
	if e.inFlight {
		// A write for this item is already on the wire; remember that the
		// latest value still needs sending once it settles.
		e.pending = true
		q.mu.Unlock()
		return
	}
	e.inFlight = true
	quantity := e.latest
	q.wg.Add(1)
	q.mu.Unlock()

	go q.deliver(itemID, quantity)
}

func (q *Queue) deliver(itemID uuid.UUID, quantity int) {
	defer q.wg.Done()

	c, span := otel.Tracer.Start(q.baseCtx, "Queue deliver")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Queue deliver").
		Str(log.KeyItemID, itemID.String()).
		Int(log.KeyQuantity, quantity).
		Logger()

	logger.Info().Msg("sending debounced quantity write")
	metrics.DebounceFlushed.Inc()
	c = logger.WithContext(c)
	err := q.send(c, itemID, quantity)
	if err != nil {
		err = fmt.Errorf("failed sending quantity write with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	} else {
		logger.Info().Msg("sent debounced quantity write")
	}

	q.mu.Lock()
	e, ok := q.entries[itemID]
	if !ok || q.closed {
		q.mu.Unlock()
		return
	}
	e.inFlight = false
	if e.pending {
		e.pending = false
		q.mu.Unlock()
		q.fire(itemID)
	} else {
		if e.timer == nil {
			delete(q.entries, itemID)
		}
		q.mu.Unlock()
	}

	if err != nil && q.onError != nil {
		q.onError(c, itemID, err)
	}
}
