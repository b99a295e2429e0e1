package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mergeeats/core/core/metrics"
)

// PromSink records terminal dispatch outcomes in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	attempts    prometheus.Histogram
}

// NewPromSink registers assignment metrics on the default Prometheus
// registerer. The Prometheus server is started separately.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_assignments_total",
		Help: "Terminal dispatch outcomes",
	}, []string{"outcome", "merged"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delivery_offer_duration_seconds",
		Help:    "Time from offer broadcast to terminal outcome",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"outcome"})
	attempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_offer_attempts",
		Help:    "Radius widening sweeps per offer",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})

	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(attempts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			attempts = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &PromSink{assignments: assignments, latency: latency, attempts: attempts}, nil
}

// RecordAssignment increments the outcome counter and observes timings.
func (s *PromSink) RecordAssignment(res coremetrics.AssignmentResult) error {
	merged := strconv.FormatBool(res.GroupID != "")
	s.assignments.WithLabelValues(res.Outcome, merged).Inc()
	s.latency.WithLabelValues(res.Outcome).Observe(res.OfferLatency.Seconds())
	s.attempts.Observe(float64(res.Attempt))
	return nil
}
