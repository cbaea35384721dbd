// Package guard defines the predicate capability used to filter values
// offered to a reaction.
//
// A Guard is evaluated in one of two placements:
//
//   - slot-level: against a single incoming value, before the value is
//     accepted into that slot. Bound is empty.
//   - reaction-level: against the complete bound tuple, immediately before
//     the reaction is declared satisfied and again when it is committed.
//     Value is nil and Bound holds one entry per slot (a []any for gather
//     slots).
//
// Guards are advisory. They must not mutate shared state, and an error is
// treated as "not allowed" for the current round by the caller.
//
// Concrete expression backends live in the luaguard and cueguard
// sub-packages.
package guard
