package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed time for metric observation
type Timer struct {
	start time.Time
}

// NewTimer creates a timer anchored at the current time
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on the observer
// and returns it
func (t *Timer) ObserveDuration(observer prometheus.Observer) time.Duration {
	d := t.Duration()
	observer.Observe(d.Seconds())
	return d
}

// ObserveDurationVec records the elapsed time in seconds on the labeled
// histogram and returns it
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) time.Duration {
	d := t.Duration()
	vec.WithLabelValues(labels...).Observe(d.Seconds())
	return d
}
