package timebox

import (
	"github.com/roach88/timebox/internal/guard"
)

// SlotSpec declares one required parameter of a reaction.
type SlotSpec struct {
	// Type is the exact runtime type a value must have to be offered.
	Type Type

	// Guard optionally filters individual values before they are accepted.
	Guard guard.Guard

	// MinAuthority rejects values provided with a lower authority.
	MinAuthority int

	// Gather accumulates every accepted value instead of keeping the latest.
	Gather bool
}

// Require declares a singular slot for values of type T.
func Require[T any]() SlotSpec {
	return SlotSpec{Type: TypeOf[T]()}
}

// Gather declares a gather slot for values of type T.
func Gather[T any]() SlotSpec {
	return SlotSpec{Type: TypeOf[T](), Gather: true}
}

// RequireNamed declares a singular slot for Named values called name.
func RequireNamed(name string) SlotSpec {
	return SlotSpec{Type: NamedType(name)}
}

// GatherNamed declares a gather slot for Named values called name.
func GatherNamed(name string) SlotSpec {
	return SlotSpec{Type: NamedType(name), Gather: true}
}

// Guarded returns a copy of s with a slot-level guard.
func (s SlotSpec) Guarded(g guard.Guard) SlotSpec {
	s.Guard = g
	return s
}

// WithMinAuthority returns a copy of s requiring at least authority n.
func (s SlotSpec) WithMinAuthority(n int) SlotSpec {
	s.MinAuthority = n
	return s
}

// offerResult is the outcome of offering one value to one slot.
type offerResult int

const (
	offerTypeMismatch offerResult = iota
	offerLowAuthority
	offerGuardRejected
	offerGuardFailed
	offerAccepted
)

// slot is the bound state of a SlotSpec inside one reaction.
// Only accessed under the coordinator's mutex.
type slot struct {
	spec     SlotSpec
	value    any
	bound    bool
	gathered []any
}

// offer runs the acceptance checks in order: type, authority, guard.
// Rejected values never touch the bound state.
func (s *slot) offer(t Type, value any, authority int) (offerResult, error) {
	if t != s.spec.Type {
		return offerTypeMismatch, nil
	}
	if authority < s.spec.MinAuthority {
		return offerLowAuthority, nil
	}
	if s.spec.Guard != nil {
		ok, err := guard.Safe(s.spec.Guard, guard.Candidate{Type: t.String(), Value: value})
		if err != nil {
			return offerGuardFailed, err
		}
		if !ok {
			return offerGuardRejected, nil
		}
	}

	if s.spec.Gather {
		s.gathered = append(s.gathered, value)
	} else {
		s.value = value
		s.bound = true
	}
	return offerAccepted, nil
}

// satisfied reports whether the slot can take part in a firing.
func (s *slot) satisfied() bool {
	if s.spec.Gather {
		return len(s.gathered) > 0
	}
	return s.bound
}

// snapshot returns the argument this slot contributes. Gather slots
// contribute a copy so a body never aliases live state.
func (s *slot) snapshot() any {
	if s.spec.Gather {
		out := make([]any, len(s.gathered))
		copy(out, s.gathered)
		return out
	}
	return s.value
}

func (s *slot) reset() {
	s.value = nil
	s.bound = false
	s.gathered = nil
}
