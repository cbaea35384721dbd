// Package journal provides a SQLite-backed record of dispatch rounds.
//
// A Journal implements timebox.Observer: every finished React call is
// appended as one row holding its outcome (state, winning reaction,
// timing, cancelled producers, guard failures). Provided values are never
// persisted.
//
// # Ordering
//
// Rows are read back ordered by seq (the coordinator's logical clock),
// then id. Wall-clock time is not stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
