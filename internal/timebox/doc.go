// Package timebox implements a priority-raced, guarded join dispatcher.
//
// Producers announce typed values with Provide (or ProvideAsync for work
// that completes later). Registered reactions each require a combination
// of typed inputs, optionally filtered by guards and a minimum authority.
// React waits, bounded by a timeout, for the single best reaction to
// become eligible, fires it exactly once and cancels any producers still
// running.
//
// ARCHITECTURE:
//
// Reaction table:
// Reactions are kept sorted by priority, highest first. Priorities are
// unique; registering a duplicate is a ConfigError and never a dispatch
// time surprise.
//
// Slot matching:
// Each reaction has ordered slots. A value is offered to a slot only if
// its runtime type matches exactly; it is then checked against the slot's
// minimum authority and guard. Singular slots keep the latest accepted
// value, gather slots keep every accepted value in arrival order.
//
// Provide/React protocol:
//  1. Provide runs one distribution pass under the coordinator mutex.
//  2. When the highest-priority reaction becomes satisfied, the one-shot
//     ready signal is released and distribution of that value stops.
//  3. React waits for the signal or the timeout, whichever comes first.
//  4. Either way it scans reactions highest first, re-checking reaction
//     guards, and fires the first satisfied one (the fallback case when
//     the wait timed out).
//  5. Outstanding producers are cancelled in the same critical section,
//     so a late value can never affect the committed round.
//
// Round state machine:
//
//	Idle -> Awaiting(timeout) -> Committed(reaction) | Exhausted
//
// A context cancelled during the wait yields the extra Aborted state.
//
// Reaction bodies run outside the critical section on a snapshot of the
// bound arguments, so a body may call Provide.
package timebox
