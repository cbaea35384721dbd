package guard

import (
	"errors"
	"fmt"
)

// Candidate is what a guard is asked about.
type Candidate struct {
	// Type is the display name of the candidate's runtime type.
	// Empty for reaction-level evaluation.
	Type string

	// Value is the incoming value (slot-level only).
	Value any

	// Bound holds the currently bound arguments in slot order
	// (reaction-level only).
	Bound []any
}

// Guard decides whether a candidate qualifies.
type Guard interface {
	Allows(c Candidate) (bool, error)
}

// Func adapts a function with the full Guard signature.
type Func func(c Candidate) (bool, error)

// Allows implements Guard.
func (f Func) Allows(c Candidate) (bool, error) {
	return f(c)
}

// ValueFunc adapts a plain predicate over the candidate value.
type ValueFunc func(value any) bool

// Allows implements Guard.
func (f ValueFunc) Allows(c Candidate) (bool, error) {
	return f(c.Value), nil
}

// TupleFunc adapts a predicate over the bound tuple. Used for
// reaction-level guards whose eligibility depends on several arguments.
type TupleFunc func(bound []any) (bool, error)

// Allows implements Guard.
func (f TupleFunc) Allows(c Candidate) (bool, error) {
	return f(c.Bound)
}

// Typed returns a slot guard over values of type T. A value of any other
// type is an evaluation error, not a silent rejection.
func Typed[T any](pred func(T) bool) Guard {
	return Func(func(c Candidate) (bool, error) {
		v, ok := c.Value.(T)
		if !ok {
			var zero T
			return false, fmt.Errorf("guard expects %T, got %T", zero, c.Value)
		}
		return pred(v), nil
	})
}

// All allows a candidate only if every guard allows it. Evaluation stops at
// the first rejection or error.
func All(guards ...Guard) Guard {
	return Func(func(c Candidate) (bool, error) {
		for _, g := range guards {
			ok, err := g.Allows(c)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Any allows a candidate if at least one guard allows it. Errors from
// individual guards are joined and returned only if no guard allows.
func Any(guards ...Guard) Guard {
	return Func(func(c Candidate) (bool, error) {
		var errs []error
		for _, g := range guards {
			ok, err := g.Allows(c)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, errors.Join(errs...)
	})
}

// Not inverts a guard. Errors pass through unchanged.
func Not(g Guard) Guard {
	return Func(func(c Candidate) (bool, error) {
		ok, err := g.Allows(c)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// Subjecter is implemented by values that expose a different shape to
// expression guards than their Go representation (for example a record
// whose fields live in a map).
type Subjecter interface {
	GuardSubject() any
}

// Subject returns the value expression backends should evaluate. The
// elements of a gathered []any are unwrapped as well.
func Subject(v any) any {
	switch val := v.(type) {
	case Subjecter:
		return val.GuardSubject()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Subject(e)
		}
		return out
	default:
		return v
	}
}

// Safe evaluates g and converts a panic into an error.
func Safe(g Guard, c Candidate) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()
	return g.Allows(c)
}
