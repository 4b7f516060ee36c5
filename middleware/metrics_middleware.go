package middleware

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"pbtcp/message"
)

// Metrics collects per-method call counts and latencies.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbtcp",
			Subsystem: "server",
			Name:      "calls_total",
			Help:      "Number of calls served, by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pbtcp",
			Subsystem: "server",
			Name:      "call_duration_seconds",
			Help:      "Time spent serving a call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "middleware: register metrics")
		}
	}
	return m, nil
}

// Middleware records every call. The outcome label is "ok" or the failure
// kind.
func (m *Metrics) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			start := time.Now()
			result := next(ctx, inv)

			outcome := "ok"
			if result.Failure != nil {
				outcome = result.Failure.Type
			}
			m.calls.WithLabelValues(inv.Method, outcome).Inc()
			m.duration.WithLabelValues(inv.Method).Observe(time.Since(start).Seconds())
			return result
		}
	}
}
