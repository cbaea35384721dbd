package timebox

import (
	"context"
	"time"
)

// RoundState is the terminal state of a dispatch round.
type RoundState string

const (
	// RoundIdle is the state before React is entered.
	RoundIdle RoundState = "idle"
	// RoundAwaiting is the state while React waits for the ready signal.
	RoundAwaiting RoundState = "awaiting"
	// RoundCommitted means a reaction fired.
	RoundCommitted RoundState = "committed"
	// RoundExhausted means the fallback scan found no satisfied reaction.
	RoundExhausted RoundState = "exhausted"
	// RoundAborted means the caller's context ended the wait.
	RoundAborted RoundState = "aborted"
)

// RoundReport describes a finished dispatch round. Provided values are
// never included.
type RoundReport struct {
	ID                 string
	Seq                int64
	Timeout            time.Duration
	Waited             time.Duration
	Signaled           bool
	State              RoundState
	Reaction           string
	Priority           int
	CancelledProducers int
	GuardFailures      int
	Err                error
}

// Observer is notified after every React call, outside the coordinator's
// critical section.
type Observer interface {
	RoundCompleted(ctx context.Context, report RoundReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report RoundReport)

// RoundCompleted implements Observer.
func (f ObserverFunc) RoundCompleted(ctx context.Context, report RoundReport) {
	f(ctx, report)
}

// Observers fans a report out to several observers in order.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(ctx context.Context, report RoundReport) {
		for _, o := range obs {
			if o != nil {
				o.RoundCompleted(ctx, report)
			}
		}
	})
}
