package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed wall-clock time and reports it into a
// Prometheus histogram, used around the monitoring daemon's tick and
// the failover engine's election so their duration shows up without
// each call site repeating time.Since boilerplate.
type Timer struct {
	start time.Time
}

// NewTimer starts a new Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the Timer was created. It
// may be called more than once; each call reflects the time elapsed
// up to that call.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed duration, in seconds, into h.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed duration, in seconds, into
// the hv series identified by labelValues.
func (t *Timer) ObserveDurationVec(hv *prometheus.HistogramVec, labelValues ...string) {
	hv.WithLabelValues(labelValues...).Observe(t.Duration().Seconds())
}
