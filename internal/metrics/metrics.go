// Package metrics exports dispatch round statistics to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/timebox/internal/timebox"
)

const namespace = "timebox"

// Collector is a timebox.Observer that records round outcomes as
// Prometheus metrics.
type Collector struct {
	rounds        *prometheus.CounterVec
	fired         *prometheus.CounterVec
	cancelled     prometheus.Counter
	guardFailures prometheus.Counter
	wait          *prometheus.HistogramVec
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Dispatch rounds by terminal state.",
		}, []string{"state"}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_fired_total",
			Help:      "Committed rounds by reaction and whether the ready signal was observed.",
		}, []string{"reaction", "priority", "signaled"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "producers_cancelled_total",
			Help:      "Asynchronous producers still running when their round committed.",
		}),
		guardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_failures_total",
			Help:      "Reaction guard evaluation errors seen during commit scans.",
		}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_wait_seconds",
			Help:      "Time React spent waiting for the ready signal.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"signaled"}),
	}

	for _, col := range []prometheus.Collector{c.rounds, c.fired, c.cancelled, c.guardFailures, c.wait} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// RoundCompleted implements timebox.Observer.
func (c *Collector) RoundCompleted(_ context.Context, r timebox.RoundReport) {
	signaled := strconv.FormatBool(r.Signaled)

	c.rounds.WithLabelValues(string(r.State)).Inc()
	if r.State == timebox.RoundCommitted {
		c.fired.WithLabelValues(r.Reaction, strconv.Itoa(r.Priority), signaled).Inc()
	}
	c.cancelled.Add(float64(r.CancelledProducers))
	c.guardFailures.Add(float64(r.GuardFailures))
	c.wait.WithLabelValues(signaled).Observe(r.Waited.Seconds())
}

// WriteText gathers g and writes it in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
