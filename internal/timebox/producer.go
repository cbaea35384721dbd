package timebox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Producer is a unit of asynchronous work whose value is provided to the
// coordinator when it completes. It should honor ctx: cancellation is
// cooperative.
type Producer func(ctx context.Context) (any, error)

// Handle tracks one scheduled Producer.
//
// Thread-safety: all methods are safe for concurrent use.
type Handle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	err       error
	delivered bool
}

func newHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		id:     uuid.Must(uuid.NewV7()).String(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the producer's UUIDv7 identifier.
func (h *Handle) ID() string {
	return h.id
}

// Cancel asks the producer to stop. Best-effort: a producer that already
// delivered is unaffected.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the producer has finished, whatever the outcome.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the producer's failure: a *ProducerError if the work failed,
// ErrProducerCancelled if it was cancelled before delivery, nil otherwise.
// Only meaningful after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Delivered reports whether the producer's value reached the coordinator.
func (h *Handle) Delivered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		h.err = err
	}
}

func (h *Handle) markDelivered() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered = true
}

// ProvideAsync schedules fn on its own goroutine and provides its value
// with the given authority once it returns. The handle is recorded before
// the work starts and is cancelled when the next React call finishes.
//
// The producer's context derives from ctx; cancelling ctx cancels the
// producer as well. A nil ctx is treated as context.Background().
func (c *Coordinator[T]) ProvideAsync(ctx context.Context, fn Producer, authority int) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	h := newHandle(ctx)

	c.mu.Lock()
	c.producers = append(c.producers, h)
	c.mu.Unlock()

	c.cfg.logger.Debug("producer scheduled",
		"producer_id", h.id,
		"authority", authority,
	)

	go c.runProducer(h, fn, authority)
	return h
}

func (c *Coordinator[T]) runProducer(h *Handle, fn Producer, authority int) {
	defer close(h.done)

	if c.sem != nil {
		if err := c.sem.Acquire(h.ctx, 1); err != nil {
			h.fail(ErrProducerCancelled)
			return
		}
		defer c.sem.Release(1)
	}

	value, err := callProducer(h.ctx, fn)
	if err != nil {
		if h.ctx.Err() != nil {
			h.fail(ErrProducerCancelled)
			return
		}
		h.fail(&ProducerError{ProducerID: h.id, Err: err})
		c.cfg.logger.Debug("producer failed",
			"producer_id", h.id,
			"error", err,
		)
		return
	}

	if value == nil {
		h.fail(&ProducerError{ProducerID: h.id, Err: ErrNilValue})
		return
	}

	delivered, errs := c.deliver(h, value, authority)
	if !delivered {
		h.fail(ErrProducerCancelled)
		c.cfg.logger.Debug("late producer value dropped", "producer_id", h.id)
		return
	}
	h.markDelivered()

	// There is no caller to surface guard failures to, so they are logged
	// regardless of policy.
	for _, e := range errs {
		c.cfg.logger.Warn("guard evaluation failed",
			"producer_id", h.id,
			"error", e,
		)
	}
}

// deliver provides a producer's value unless the producer was cancelled.
// The cancellation check and the distribution pass share one critical
// section, so a value is either fully distributed before a round commits
// or dropped.
func (c *Coordinator[T]) deliver(h *Handle, value any, authority int) (bool, []error) {
	t := TypeOfValue(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if h.ctx.Err() != nil {
		return false, nil
	}
	return true, c.distributeLocked(t, value, authority)
}

// callProducer runs fn, converting a panic into an error.
func callProducer(ctx context.Context, fn Producer) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return fn(ctx)
}

// cancelProducersLocked cancels and forgets every recorded handle.
// Returns how many handles had not yet finished.
func (c *Coordinator[T]) cancelProducersLocked() int {
	pending := 0
	for _, h := range c.producers {
		select {
		case <-h.done:
		default:
			pending++
		}
		h.cancel()
	}
	if pending > 0 {
		c.cfg.logger.Debug("producers cancelled", slog.Int("count", pending))
	}
	c.producers = nil
	return pending
}
