package timebox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/timebox/internal/guard"
)

// Body is the code a reaction runs when it fires. It receives the bound
// arguments in slot order and the round's result box.
type Body[T any] func(ctx context.Context, args Args, result *ResultBox[T]) error

// ReactionSpec declares a reaction for registration.
type ReactionSpec[T any] struct {
	// Name identifies the reaction in logs and outcomes. Defaults to
	// "priority-<n>" when empty.
	Name string

	// Priority ranks the reaction; higher wins. Unique per Coordinator.
	Priority int

	// Slots are the required parameters in order. No slots makes the
	// reaction a universal fallback.
	Slots []SlotSpec

	// Guard is an optional reaction-level guard over the bound tuple.
	Guard guard.Guard

	// Body runs when the reaction fires.
	Body Body[T]
}

// Args are the bound arguments of a firing reaction in slot order. A
// gather slot contributes a []any.
type Args struct {
	values []any
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a.values)
}

// At returns the raw argument at position i.
func (a Args) At(i int) any {
	return a.values[i]
}

// Values returns a copy of all arguments.
func (a Args) Values() []any {
	out := make([]any, len(a.values))
	copy(out, a.values)
	return out
}

// Arg returns argument i as a V. Panics if the slot type and V disagree,
// which is a programming error in the body.
func Arg[V any](a Args, i int) V {
	return a.values[i].(V)
}

// Gathered returns the values of gather slot i as a []V.
func Gathered[V any](a Args, i int) []V {
	raw := a.values[i].([]any)
	out := make([]V, len(raw))
	for j, v := range raw {
		out[j] = v.(V)
	}
	return out
}

// reaction is a registered ReactionSpec with live slot state.
// Only accessed under the coordinator's mutex.
type reaction[T any] struct {
	name     string
	priority int
	slots    []*slot
	guard    guard.Guard
	body     Body[T]
}

func newReaction[T any](spec ReactionSpec[T]) (*reaction[T], error) {
	name := spec.Name
	if name == "" {
		name = "priority-" + strconv.Itoa(spec.Priority)
	}
	if spec.Body == nil {
		return nil, &ConfigError{
			Code:     ErrCodeMissingBody,
			Message:  "reaction has no body",
			Reaction: name,
			Priority: spec.Priority,
			Slot:     -1,
		}
	}

	r := &reaction[T]{
		name:     name,
		priority: spec.Priority,
		slots:    make([]*slot, len(spec.Slots)),
		guard:    spec.Guard,
		body:     spec.Body,
	}
	for i, ss := range spec.Slots {
		if ss.Type.IsZero() {
			return nil, &ConfigError{
				Code:     ErrCodeMissingType,
				Message:  "slot has no required type",
				Reaction: name,
				Priority: spec.Priority,
				Slot:     i,
			}
		}
		if ss.MinAuthority < 0 {
			return nil, &ConfigError{
				Code:     ErrCodeInvalidAuthority,
				Message:  fmt.Sprintf("minimum authority %d is negative", ss.MinAuthority),
				Reaction: name,
				Priority: spec.Priority,
				Slot:     i,
			}
		}
		r.slots[i] = &slot{spec: ss}
	}
	return r, nil
}

// offer distributes one value to every matching slot. Slot guard failures
// are collected; they reject the value for that slot only.
func (r *reaction[T]) offer(t Type, value any, authority int) (accepted int, errs []error) {
	for i, s := range r.slots {
		res, err := s.offer(t, value, authority)
		switch res {
		case offerAccepted:
			accepted++
		case offerGuardFailed:
			errs = append(errs, &GuardError{Reaction: r.name, Priority: r.priority, Slot: i, Err: err})
		}
	}
	return accepted, errs
}

// satisfied reports whether every slot is satisfied and the reaction
// guard, if any, allows the bound tuple. A guard failure yields false
// together with a GuardError.
func (r *reaction[T]) satisfied() (bool, error) {
	for _, s := range r.slots {
		if !s.satisfied() {
			return false, nil
		}
	}
	if r.guard == nil {
		return true, nil
	}
	ok, err := guard.Safe(r.guard, guard.Candidate{Bound: r.bound()})
	if err != nil {
		return false, &GuardError{Reaction: r.name, Priority: r.priority, Slot: -1, Err: err}
	}
	return ok, nil
}

// bound snapshots the current arguments.
func (r *reaction[T]) bound() []any {
	out := make([]any, len(r.slots))
	for i, s := range r.slots {
		out[i] = s.snapshot()
	}
	return out
}

func (r *reaction[T]) reset() {
	for _, s := range r.slots {
		s.reset()
	}
}
