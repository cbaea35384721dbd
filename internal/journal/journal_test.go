package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/timebox/internal/timebox"
)

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func committed(id string, seq int64, reaction string, priority int) timebox.RoundReport {
	return timebox.RoundReport{
		ID:       id,
		Seq:      seq,
		Timeout:  time.Second,
		Waited:   1500 * time.Microsecond,
		Signaled: true,
		State:    timebox.RoundCommitted,
		Reaction: reaction,
		Priority: priority,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	version, err := j.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion() failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		if err := j.WriteRound(context.Background(), committed("r1", 1, "a", 1)); err != nil {
			t.Fatalf("WriteRound() iteration %d failed: %v", i, err)
		}
		j.Close()
	}

	j, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer j.Close()

	rounds, err := j.Rounds(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Rounds() failed: %v", err)
	}
	if len(rounds) != 1 {
		t.Errorf("got %d rounds, want 1 (writes are idempotent)", len(rounds))
	}
}

func TestWriteRound_RoundTrip(t *testing.T) {
	j := createTestJournal(t, WithSource("pets"))
	ctx := context.Background()

	if err := j.WriteRound(ctx, committed("r1", 1, "stuff", 2)); err != nil {
		t.Fatalf("WriteRound() failed: %v", err)
	}
	if err := j.WriteRound(ctx, timebox.RoundReport{
		ID:                 "r2",
		Seq:                2,
		Timeout:            10 * time.Millisecond,
		Waited:             10 * time.Millisecond,
		State:              timebox.RoundExhausted,
		CancelledProducers: 3,
		GuardFailures:      1,
		Err:                errors.New("guard failed"),
	}); err != nil {
		t.Fatalf("WriteRound() failed: %v", err)
	}

	rounds, err := j.Rounds(ctx, Filter{})
	if err != nil {
		t.Fatalf("Rounds() failed: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("got %d rounds, want 2", len(rounds))
	}

	first := rounds[0]
	if first.ID != "r1" || first.Source != "pets" || first.State != "committed" || first.Reaction != "stuff" {
		t.Errorf("unexpected first round: %+v", first)
	}
	if first.Priority == nil || *first.Priority != 2 {
		t.Errorf("priority = %v, want 2", first.Priority)
	}
	if !first.Signaled || first.Timeout != time.Second || first.Waited != 1500*time.Microsecond {
		t.Errorf("unexpected timing: %+v", first)
	}

	second := rounds[1]
	if second.Priority != nil {
		t.Errorf("exhausted round has priority %d", *second.Priority)
	}
	if second.CancelledProducers != 3 || second.GuardFailures != 1 || second.Error != "guard failed" {
		t.Errorf("unexpected second round: %+v", second)
	}
}

func TestRounds_OrderAndLimit(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	// Written out of order on purpose.
	for _, seq := range []int64{3, 1, 4, 2} {
		id := "r" + string(rune('0'+seq))
		if err := j.WriteRound(ctx, committed(id, seq, "a", 1)); err != nil {
			t.Fatalf("WriteRound() failed: %v", err)
		}
	}

	all, err := j.Rounds(ctx, Filter{})
	if err != nil {
		t.Fatalf("Rounds() failed: %v", err)
	}
	for i, r := range all {
		if r.Seq != int64(i+1) {
			t.Errorf("rounds[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}

	last, err := j.Rounds(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Rounds() failed: %v", err)
	}
	if len(last) != 2 || last[0].Seq != 3 || last[1].Seq != 4 {
		t.Errorf("Limit 2 returned %+v, want seq 3 and 4", last)
	}
}

func TestRounds_EmptyIsNotNil(t *testing.T) {
	j := createTestJournal(t)

	rounds, err := j.Rounds(context.Background(), Filter{Source: "nobody"})
	if err != nil {
		t.Fatalf("Rounds() failed: %v", err)
	}
	if rounds == nil {
		t.Error("Rounds() returned nil, want empty slice")
	}
}

func TestStats(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	reports := []timebox.RoundReport{
		committed("r1", 1, "stuff", 2),
		committed("r2", 2, "stuff", 2),
		committed("r3", 3, "fallback", 0),
		{ID: "r4", Seq: 4, State: timebox.RoundExhausted},
	}
	reports[2].Signaled = false
	for _, r := range reports {
		if err := j.WriteRound(ctx, r); err != nil {
			t.Fatalf("WriteRound() failed: %v", err)
		}
	}

	s, err := j.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if s.Total != 4 || s.Signaled != 2 {
		t.Errorf("Total=%d Signaled=%d, want 4 and 2", s.Total, s.Signaled)
	}
	if s.ByState["committed"] != 3 || s.ByState["exhausted"] != 1 {
		t.Errorf("ByState = %v", s.ByState)
	}
	if s.Fired["stuff"] != 2 || s.Fired["fallback"] != 1 {
		t.Errorf("Fired = %v", s.Fired)
	}
}

func TestRoundCompleted_ObservesCoordinator(t *testing.T) {
	j := createTestJournal(t)

	c, err := timebox.New([]timebox.ReactionSpec[string]{{
		Name:     "fallback",
		Priority: 0,
		Body: func(_ context.Context, _ timebox.Args, r *timebox.ResultBox[string]) error {
			r.Set("done")
			return nil
		},
	}}, timebox.WithObserver(j))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.React(ctx, time.Millisecond); err != nil {
		t.Fatalf("React() failed: %v", err)
	}
	cancel()

	rounds, err := j.Rounds(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Rounds() failed: %v", err)
	}
	if len(rounds) != 1 || rounds[0].Reaction != "fallback" {
		t.Errorf("journal holds %+v, want one fallback round", rounds)
	}
}

func TestLastSeq(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	seq, err := j.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() on empty journal = %d, want 0", seq)
	}

	for _, r := range []timebox.RoundReport{
		committed("r-1", 3, "a", 1),
		committed("r-2", 7, "a", 1),
		committed("r-3", 5, "b", 2),
	} {
		if err := j.WriteRound(ctx, r); err != nil {
			t.Fatalf("WriteRound() failed: %v", err)
		}
	}

	seq, err = j.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 7 {
		t.Errorf("LastSeq() = %d, want 7", seq)
	}
}
