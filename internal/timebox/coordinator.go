package timebox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/roach88/timebox/internal/timebox"

// ErrNilValue is returned when a nil value is provided. A nil has no
// runtime type and could never bind.
var ErrNilValue = errors.New("cannot provide a nil value")

// Coordinator owns a priority-ordered set of reactions, distributes
// provided values to their slots and fires at most one reaction per React
// call.
//
// Thread-safety model:
//   - Provide(), ProvideAsync(), Register(), Reset(): safe from any goroutine
//   - React(): one goroutine owns each dispatch round
//
// INVARIANTS:
//   - reactions is sorted by priority, highest first
//   - priorities are unique
//   - the reaction table, producer handles and ready signal are only
//     touched under mu
type Coordinator[T any] struct {
	mu         sync.Mutex
	reactions  []*reaction[T]
	priorities map[int]struct{}
	highest    int
	ready      *readySignal
	producers  []*Handle

	sem *semaphore.Weighted
	cfg config
}

// Outcome is the definite result of one React call.
type Outcome[T any] struct {
	// Fired is false when no reaction fired.
	Fired bool

	// Reaction and Priority identify the fired reaction.
	Reaction string
	Priority int

	// Signaled is true when the highest-priority reaction became ready
	// before the timeout.
	Signaled bool

	State   RoundState
	RoundID string
	Seq     int64

	value    T
	hasValue bool
}

// Result returns what the fired reaction stored in its ResultBox. The
// second result is false if nothing fired or the body never called Set.
func (o Outcome[T]) Result() (T, bool) {
	return o.value, o.hasValue
}

// New builds a Coordinator from reaction specs. Any ConfigError (for
// example a duplicate priority) prevents construction.
func New[T any](specs []ReactionSpec[T], opts ...Option) (*Coordinator[T], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Coordinator[T]{
		priorities: make(map[int]struct{}, len(specs)),
		ready:      newReadySignal(),
		cfg:        cfg,
	}
	if cfg.maxProducers > 0 {
		c.sem = semaphore.NewWeighted(cfg.maxProducers)
	}

	for _, spec := range specs {
		if err := c.Register(spec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds one reaction. Returns a ConfigError if the priority is
// already taken or the spec is incomplete; the coordinator is unchanged
// in that case.
func (c *Coordinator[T]) Register(spec ReactionSpec[T]) error {
	r, err := newReaction(spec)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.priorities[r.priority]; taken {
		return &ConfigError{
			Code:     ErrCodeDuplicatePriority,
			Message:  fmt.Sprintf("multiple reactions have priority %d", r.priority),
			Reaction: r.name,
			Priority: r.priority,
			Slot:     -1,
		}
	}
	c.priorities[r.priority] = struct{}{}
	prev, hadReactions := c.highest, len(c.reactions) > 0

	idx, _ := slices.BinarySearchFunc(c.reactions, r.priority, func(e *reaction[T], p int) int {
		// Descending order.
		return p - e.priority
	})
	c.reactions = slices.Insert(c.reactions, idx, r)
	c.highest = c.reactions[0].priority
	if hadReactions && c.highest != prev {
		// A signal released for the old highest no longer means ready.
		c.ready.rearm()
	}

	c.cfg.logger.Debug("reaction registered",
		"reaction", r.name,
		"priority", r.priority,
		"slots", len(r.slots),
	)

	c.armIfHighestReadyLocked()
	return nil
}

// Provide offers value, with the given authority, to every reaction's
// slots in priority order. Distribution stops early once the
// highest-priority reaction is satisfied.
//
// Guard failures never abort the pass. Under GuardErrorsSurface they are
// returned joined together; under GuardErrorsLog they are logged and nil
// is returned.
func (c *Coordinator[T]) Provide(value any, authority int) error {
	if value == nil {
		return ErrNilValue
	}
	t := TypeOfValue(value)

	c.mu.Lock()
	errs := c.distributeLocked(t, value, authority)
	c.mu.Unlock()

	return c.guardFailures("provide", errs)
}

// distributeLocked is the atomic distribution pass. Caller holds mu.
func (c *Coordinator[T]) distributeLocked(t Type, value any, authority int) []error {
	var errs []error
	for _, r := range c.reactions {
		accepted, offerErrs := r.offer(t, value, authority)
		errs = append(errs, offerErrs...)
		if accepted > 0 {
			c.cfg.logger.Debug("value accepted",
				"type", t.String(),
				"authority", authority,
				"reaction", r.name,
				"slots", accepted,
			)
		}

		if r.priority != c.highest {
			continue
		}
		ok, err := r.satisfied()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			if c.ready.release() {
				c.cfg.logger.Debug("highest priority reaction ready",
					"reaction", r.name,
					"priority", r.priority,
				)
			}
			return errs
		}
	}
	return errs
}

// React waits up to timeout for the highest-priority reaction to become
// ready, then fires the first satisfied reaction in priority order. If
// the wait times out the same scan runs anyway, so a lower-priority
// reaction may fire. At most one reaction body runs per call.
//
// Every outstanding producer is cancelled before React returns. If ctx
// ends the wait, nothing fires and ctx.Err() is returned.
//
// A body error is returned as a *ReactionError with Fired still true.
func (c *Coordinator[T]) React(ctx context.Context, timeout time.Duration) (Outcome[T], error) {
	out := Outcome[T]{
		State:   RoundAwaiting,
		RoundID: uuid.Must(uuid.NewV7()).String(),
		Seq:     c.cfg.clock.Next(),
	}

	ctx, span := c.cfg.tracer.Start(ctx, "timebox.react")
	defer span.End()
	span.SetAttributes(
		attribute.String("timebox.round_id", out.RoundID),
		attribute.Int64("timebox.seq", out.Seq),
		attribute.Int64("timebox.timeout_ms", timeout.Milliseconds()),
	)

	c.mu.Lock()
	wait := c.ready.wait()
	c.mu.Unlock()

	c.cfg.logger.Debug("round awaiting",
		"round_id", out.RoundID,
		"seq", out.Seq,
		"timeout", timeout,
	)

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wait:
		out.Signaled = true
	case <-timer.C:
	case <-ctx.Done():
		c.mu.Lock()
		cancelled := c.cancelProducersLocked()
		c.mu.Unlock()

		out.State = RoundAborted
		err := ctx.Err()
		c.cfg.logger.Info("round aborted",
			"round_id", out.RoundID,
			"seq", out.Seq,
			"error", err,
		)
		span.SetStatus(codes.Error, err.Error())
		c.report(ctx, out, timeout, time.Since(start), cancelled, 0, err)
		return out, err
	}
	waited := time.Since(start)

	c.mu.Lock()
	winner, args, guardErrs := c.scanLocked()
	cancelled := c.cancelProducersLocked()
	c.ready.rearm()
	c.armIfHighestReadyLocked()
	c.mu.Unlock()

	guardErr := c.guardFailures("react", guardErrs)

	if winner == nil {
		out.State = RoundExhausted
		c.cfg.logger.Info("no reaction fired",
			"round_id", out.RoundID,
			"seq", out.Seq,
			"signaled", out.Signaled,
		)
		span.SetAttributes(attribute.String("timebox.state", string(out.State)))
		c.report(ctx, out, timeout, waited, cancelled, len(guardErrs), guardErr)
		return out, guardErr
	}

	if !out.Signaled {
		c.cfg.logger.Debug("timeout elapsed, fallback scan selected reaction",
			"round_id", out.RoundID,
			"reaction", winner.name,
			"priority", winner.priority,
		)
	}

	out.Fired = true
	out.State = RoundCommitted
	out.Reaction = winner.name
	out.Priority = winner.priority

	box := NewResultBox[T]()
	var err error
	if bodyErr := callBody(ctx, winner.body, Args{values: args}, box); bodyErr != nil {
		err = &ReactionError{Reaction: winner.name, Priority: winner.priority, Err: bodyErr}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.logger.Error("reaction failed",
			"round_id", out.RoundID,
			"reaction", winner.name,
			"priority", winner.priority,
			"error", bodyErr,
		)
	}
	out.value, out.hasValue = box.Get()

	c.cfg.logger.Info("reaction fired",
		"round_id", out.RoundID,
		"seq", out.Seq,
		"reaction", winner.name,
		"priority", winner.priority,
		"signaled", out.Signaled,
		"cancelled_producers", cancelled,
	)
	span.SetAttributes(
		attribute.String("timebox.state", string(out.State)),
		attribute.String("timebox.reaction", winner.name),
		attribute.Int("timebox.priority", winner.priority),
		attribute.Bool("timebox.signaled", out.Signaled),
	)

	err = errors.Join(err, guardErr)
	c.report(ctx, out, timeout, waited, cancelled, len(guardErrs), err)
	return out, err
}

// scanLocked finds the first satisfied reaction, highest priority first,
// re-checking reaction guards. Caller holds mu.
func (c *Coordinator[T]) scanLocked() (*reaction[T], []any, []error) {
	var errs []error
	for _, r := range c.reactions {
		ok, err := r.satisfied()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return r, r.bound(), errs
		}
	}
	return nil, nil, errs
}

// armIfHighestReadyLocked releases the ready signal if the
// highest-priority reaction is already satisfied, for example a slotless
// reaction or state carried over from a previous round. Caller holds mu.
func (c *Coordinator[T]) armIfHighestReadyLocked() {
	if len(c.reactions) == 0 {
		return
	}
	if ok, _ := c.reactions[0].satisfied(); ok {
		c.ready.release()
	}
}

// Reset clears every slot's bound state, starting a new dispatch cycle.
func (c *Coordinator[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.reactions {
		r.reset()
	}
	c.ready.rearm()
	c.armIfHighestReadyLocked()
}

// Pending returns the number of producer handles awaiting the next round.
func (c *Coordinator[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.producers)
}

// HighestPriority returns the highest registered priority. The second
// result is false if no reaction is registered.
func (c *Coordinator[T]) HighestPriority() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highest, len(c.reactions) > 0
}

// ReactionInfo describes a registered reaction for introspection.
type ReactionInfo struct {
	Name      string
	Priority  int
	Slots     int
	Satisfied bool
}

// Reactions lists the registered reactions, highest priority first.
// Used for testing and diagnostics.
func (c *Coordinator[T]) Reactions() []ReactionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ReactionInfo, len(c.reactions))
	for i, r := range c.reactions {
		ok, _ := r.satisfied()
		out[i] = ReactionInfo{Name: r.name, Priority: r.priority, Slots: len(r.slots), Satisfied: ok}
	}
	return out
}

// guardFailures applies the guard error policy.
func (c *Coordinator[T]) guardFailures(op string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if c.cfg.guardPolicy == GuardErrorsLog {
		for _, err := range errs {
			c.cfg.logger.Warn("guard evaluation failed", "op", op, "error", err)
		}
		return nil
	}
	return errors.Join(errs...)
}

func (c *Coordinator[T]) report(ctx context.Context, out Outcome[T], timeout, waited time.Duration, cancelled, guardFailures int, err error) {
	if c.cfg.observer == nil {
		return
	}
	c.cfg.observer.RoundCompleted(ctx, RoundReport{
		ID:                 out.RoundID,
		Seq:                out.Seq,
		Timeout:            timeout,
		Waited:             waited,
		Signaled:           out.Signaled,
		State:              out.State,
		Reaction:           out.Reaction,
		Priority:           out.Priority,
		CancelledProducers: cancelled,
		GuardFailures:      guardFailures,
		Err:                err,
	})
}

// callBody runs a reaction body, converting a panic into an error.
func callBody[T any](ctx context.Context, body Body[T], args Args, box *ResultBox[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reaction panic: %v", r)
		}
	}()
	return body(ctx, args, box)
}
