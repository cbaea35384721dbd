package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/timebox/internal/timebox"
)

// WriteRound inserts one round outcome.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: a report written twice
// is stored once.
func (j *Journal) WriteRound(ctx context.Context, r timebox.RoundReport) error {
	var priority sql.NullInt64
	if r.State == timebox.RoundCommitted {
		priority = sql.NullInt64{Int64: int64(r.Priority), Valid: true}
	}
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO rounds
		(id, source, seq, state, reaction, priority, signaled, timeout_ms, waited_us, cancelled_producers, guard_failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		j.source,
		r.Seq,
		string(r.State),
		r.Reaction,
		priority,
		r.Signaled,
		r.Timeout.Milliseconds(),
		r.Waited.Microseconds(),
		r.CancelledProducers,
		r.GuardFailures,
		errText,
	)
	if err != nil {
		return fmt.Errorf("write round: %w", err)
	}
	return nil
}

// RoundCompleted implements timebox.Observer. Write failures are logged.
func (j *Journal) RoundCompleted(ctx context.Context, r timebox.RoundReport) {
	// The round is already decided; a cancelled caller context must not
	// lose its record.
	if err := j.WriteRound(context.WithoutCancel(ctx), r); err != nil {
		j.logger.Error("journal write failed",
			"round_id", r.ID,
			"error", err,
		)
	}
}
