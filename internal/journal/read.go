package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Round is one stored round outcome.
type Round struct {
	ID                 string        `json:"id"`
	Source             string        `json:"source,omitempty"`
	Seq                int64         `json:"seq"`
	State              string        `json:"state"`
	Reaction           string        `json:"reaction,omitempty"`
	Priority           *int          `json:"priority,omitempty"`
	Signaled           bool          `json:"signaled"`
	Timeout            time.Duration `json:"timeout"`
	Waited             time.Duration `json:"waited"`
	CancelledProducers int           `json:"cancelled_producers"`
	GuardFailures      int           `json:"guard_failures"`
	Error              string        `json:"error,omitempty"`
}

// Filter narrows Rounds.
type Filter struct {
	// Source restricts results to one source label. Empty means all.
	Source string

	// Limit keeps only the last Limit rounds by seq. Zero means all.
	Limit int
}

// Rounds returns stored rounds ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (j *Journal) Rounds(ctx context.Context, f Filter) ([]Round, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, source, seq, state, reaction, priority, signaled, timeout_ms, waited_us, cancelled_producers, guard_failures, error
		FROM (
			SELECT * FROM rounds
			WHERE (? = '' OR source = ?)
			ORDER BY seq DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, f.Source, f.Source, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return rounds, nil
}

func scanRound(rows *sql.Rows) (Round, error) {
	var (
		r         Round
		priority  sql.NullInt64
		timeoutMS int64
		waitedUS  int64
	)
	err := rows.Scan(
		&r.ID, &r.Source, &r.Seq, &r.State, &r.Reaction, &priority,
		&r.Signaled, &timeoutMS, &waitedUS, &r.CancelledProducers, &r.GuardFailures, &r.Error,
	)
	if err != nil {
		return Round{}, fmt.Errorf("scan round: %w", err)
	}
	if priority.Valid {
		p := int(priority.Int64)
		r.Priority = &p
	}
	r.Timeout = time.Duration(timeoutMS) * time.Millisecond
	r.Waited = time.Duration(waitedUS) * time.Microsecond
	return r, nil
}

// Stats summarizes stored rounds.
type Stats struct {
	Total    int            `json:"total"`
	ByState  map[string]int `json:"by_state"`
	Fired    map[string]int `json:"fired"`
	Signaled int            `json:"signaled"`
}

// Stats counts rounds by state and fired rounds by reaction.
func (j *Journal) Stats(ctx context.Context, source string) (Stats, error) {
	s := Stats{ByState: map[string]int{}, Fired: map[string]int{}}

	rows, err := j.db.QueryContext(ctx, `
		SELECT state, reaction, signaled, COUNT(*)
		FROM rounds
		WHERE (? = '' OR source = ?)
		GROUP BY state, reaction, signaled
	`, source, source)
	if err != nil {
		return s, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state, reaction string
			signaled        bool
			n               int
		)
		if err := rows.Scan(&state, &reaction, &signaled, &n); err != nil {
			return s, fmt.Errorf("scan stats: %w", err)
		}
		s.Total += n
		s.ByState[state] += n
		if reaction != "" {
			s.Fired[reaction] += n
		}
		if signaled {
			s.Signaled += n
		}
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("iterate stats: %w", err)
	}
	return s, nil
}

// LastSeq returns the highest seq stored across all sources, or 0 for an
// empty journal. Used to resume round numbering with timebox.NewClockAt.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM rounds`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
