package timebox

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GuardErrorPolicy controls what Provide does with guard evaluation
// failures.
type GuardErrorPolicy int

const (
	// GuardErrorsSurface returns guard failures from Provide as a joined error.
	GuardErrorsSurface GuardErrorPolicy = iota
	// GuardErrorsLog logs guard failures and returns nil from Provide.
	GuardErrorsLog
)

// ParseGuardErrorPolicy maps "surface" or "log" to a policy.
func ParseGuardErrorPolicy(s string) (GuardErrorPolicy, bool) {
	switch s {
	case "surface", "":
		return GuardErrorsSurface, true
	case "log":
		return GuardErrorsLog, true
	default:
		return GuardErrorsSurface, false
	}
}

// String implements fmt.Stringer.
func (p GuardErrorPolicy) String() string {
	if p == GuardErrorsLog {
		return "log"
	}
	return "surface"
}

type config struct {
	logger       *slog.Logger
	guardPolicy  GuardErrorPolicy
	maxProducers int64
	observer     Observer
	tracer       trace.Tracer
	clock        *Clock
}

func defaultConfig() config {
	return config{
		logger:      slog.Default(),
		guardPolicy: GuardErrorsSurface,
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
		clock:       NewClock(),
	}
}

// Option configures a Coordinator.
type Option func(*config)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithGuardErrorPolicy selects how Provide reports guard failures.
func WithGuardErrorPolicy(p GuardErrorPolicy) Option {
	return func(c *config) {
		c.guardPolicy = p
	}
}

// WithMaxProducers bounds the number of asynchronous producers running at
// once. Zero or negative means unbounded.
func WithMaxProducers(n int) Option {
	return func(c *config) {
		c.maxProducers = int64(n)
	}
}

// WithObserver registers an observer for finished rounds.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithTracerProvider sets the OpenTelemetry provider for round spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock sets the clock used to number rounds.
func WithClock(clock *Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}
