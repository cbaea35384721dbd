package scenario

import (
	"github.com/roach88/timebox/internal/timebox"
)

// Record is a dynamically-typed provided value.
type Record struct {
	Kind   string
	Fields map[string]any
}

// TypeName implements timebox.Named.
func (r Record) TypeName() string {
	return r.Kind
}

// GuardSubject exposes the fields to expression guards.
func (r Record) GuardSubject() any {
	if r.Fields == nil {
		return map[string]any{}
	}
	return r.Fields
}

// ArgView is how a bound Record appears in a trace.
type ArgView struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Firing is the result every scenario body records.
type Firing struct {
	Body string `json:"body"`
	Args []any  `json:"args"`
}

// TraceEvent is one entry of a scenario trace.
//
// Types:
//   - "provide": a synchronous Provide call
//   - "schedule": a ProvideAsync call
//   - "reset": bound state cleared before a round
//   - "react": the round outcome
//   - "producer": an asynchronous producer's final status
type TraceEvent struct {
	Type      string         `json:"type"`
	Round     int            `json:"round"`
	ValueType string         `json:"value_type,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Authority int            `json:"authority,omitempty"`
	State     string         `json:"state,omitempty"`
	Reaction  string         `json:"reaction,omitempty"`
	Priority  *int           `json:"priority,omitempty"`
	Signaled  bool           `json:"signaled,omitempty"`
	Result    *Firing        `json:"result,omitempty"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every round matched its expectations.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Outcomes holds each round's coordinator outcome in order.
	Outcomes []timebox.Outcome[Firing] `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}

func viewOf(v any) any {
	switch val := v.(type) {
	case Record:
		return ArgView{Type: val.Kind, Fields: val.Fields}
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = viewOf(e)
		}
		return out
	default:
		return val
	}
}
