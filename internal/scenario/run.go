package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roach88/timebox/internal/decl"
	"github.com/roach88/timebox/internal/timebox"
)

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	coordinator []timebox.Option
	timeout     time.Duration
}

// WithDefaultTimeout sets the React timeout for rounds that do not set
// their own. Default: DefaultTimeout.
func WithDefaultTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCoordinatorOptions passes options through to timebox.New, for
// example an observer or a logger.
func WithCoordinatorOptions(opts ...timebox.Option) RunOption {
	return func(c *runConfig) {
		c.coordinator = append(c.coordinator, opts...)
	}
}

// Run executes a scenario and returns its trace.
//
// An error is returned only when the scenario cannot run at all (for
// example the declarations do not compile). Unmet expectations are
// recorded in Result.Errors.
func Run(ctx context.Context, s *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	src, err := os.ReadFile(s.Reactions)
	if err != nil {
		return nil, fmt.Errorf("failed to read reactions: %w", err)
	}
	specs, err := decl.Compile[Firing](src, s.Reactions, resolver{})
	if err != nil {
		return nil, err
	}
	c, err := timebox.New(specs, cfg.coordinator...)
	if err != nil {
		return nil, err
	}

	res := NewResult()
	for i, round := range s.Rounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		runRound(ctx, c, i+1, round, cfg.timeout, res)
	}
	return res, nil
}

type pendingProducer struct {
	handle *timebox.Handle
	value  Record
}

func runRound(ctx context.Context, c *timebox.Coordinator[Firing], n int, r Round, fallback time.Duration, res *Result) {
	if r.Reset {
		c.Reset()
		res.add(TraceEvent{Type: "reset", Round: n})
	}

	var pending []pendingProducer
	for _, step := range r.Steps {
		rec := step.Provide.Record()

		if step.Async {
			h := c.ProvideAsync(ctx, producer(rec, step), step.Authority)
			pending = append(pending, pendingProducer{handle: h, value: rec})
			res.add(TraceEvent{
				Type:      "schedule",
				Round:     n,
				ValueType: rec.Kind,
				Fields:    rec.Fields,
				Authority: step.Authority,
			})
			continue
		}

		ev := TraceEvent{
			Type:      "provide",
			Round:     n,
			ValueType: rec.Kind,
			Fields:    rec.Fields,
			Authority: step.Authority,
		}
		if err := c.Provide(rec, step.Authority); err != nil {
			ev.Error = err.Error()
		}
		res.add(ev)
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = fallback
	}
	out, err := c.React(ctx, timeout)
	res.Outcomes = append(res.Outcomes, out)

	ev := TraceEvent{
		Type:     "react",
		Round:    n,
		State:    string(out.State),
		Signaled: out.Signaled,
	}
	if out.Fired {
		ev.Reaction = out.Reaction
		p := out.Priority
		ev.Priority = &p
		if f, ok := out.Result(); ok {
			ev.Result = &f
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	res.add(ev)

	for _, p := range pending {
		<-p.handle.Done()
		res.add(producerEvent(n, p))
	}

	checkExpect(n, r.Expect, out, err, res)
}

func producer(rec Record, step Step) timebox.Producer {
	return func(ctx context.Context) (any, error) {
		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if step.Fail != "" {
			return nil, errors.New(step.Fail)
		}
		return rec, nil
	}
}

func producerEvent(n int, p pendingProducer) TraceEvent {
	ev := TraceEvent{Type: "producer", Round: n, ValueType: p.value.Kind}

	err := p.handle.Err()
	switch {
	case p.handle.Delivered():
		ev.Status = "delivered"
	case errors.Is(err, timebox.ErrProducerCancelled):
		ev.Status = "cancelled"
	default:
		ev.Status = "failed"
		// The wrapper names the producer by id, which varies per run.
		var pe *timebox.ProducerError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		if err != nil {
			ev.Error = err.Error()
		}
	}
	return ev
}

func checkExpect(n int, e *Expect, out timebox.Outcome[Firing], err error, res *Result) {
	if e == nil {
		return
	}
	if e.Fired != nil && *e.Fired != out.Fired {
		res.AddError(fmt.Sprintf("round %d: fired = %t, want %t", n, out.Fired, *e.Fired))
	}
	if e.Reaction != "" && e.Reaction != out.Reaction {
		res.AddError(fmt.Sprintf("round %d: reaction = %q, want %q", n, out.Reaction, e.Reaction))
	}
	if e.State != "" && e.State != string(out.State) {
		res.AddError(fmt.Sprintf("round %d: state = %q, want %q", n, out.State, e.State))
	}
	switch {
	case e.Error == "" && err != nil:
		res.AddError(fmt.Sprintf("round %d: unexpected error: %v", n, err))
	case e.Error != "" && (err == nil || !strings.Contains(err.Error(), e.Error)):
		res.AddError(fmt.Sprintf("round %d: error = %v, want it to contain %q", n, err, e.Error))
	}
}

// resolver treats every declared type as a Record kind and gives every
// body the same recording behavior.
type resolver struct{}

func (resolver) ResolveType(name string) (timebox.Type, bool) {
	return timebox.NamedType(name), true
}

func (resolver) ResolveBody(name string) (timebox.Body[Firing], bool) {
	return func(_ context.Context, args timebox.Args, result *timebox.ResultBox[Firing]) error {
		f := Firing{Body: name, Args: make([]any, args.Len())}
		for i := range args.Len() {
			f.Args[i] = viewOf(args.At(i))
		}
		result.Set(f)
		return nil
	}, true
}
