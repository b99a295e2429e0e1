package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	offersBroadcast    *prometheus.CounterVec
	acceptLatency      *prometheus.HistogramVec
	assignmentOutcomes *prometheus.CounterVec
	candidatesPerOffer prometheus.Histogram
	notifySuccess      prometheus.Counter
	notifyFailure      prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, prometheus.Counter) {
	off := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_offers_broadcast_total",
			Help: "Number of delivery offer broadcasts, including radius widenings",
		},
		[]string{"unit"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_offer_accept_latency_seconds",
			Help:    "Latency from first broadcast to the winning accept",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"unit"},
	)
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_assignment_outcomes_total",
			Help: "Terminal offer outcomes by kind",
		},
		[]string{"outcome"},
	)
	cand := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_offer_candidates",
			Help:    "Candidate partners per offer broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_publish_success_total",
			Help: "Number of successful notifier publish operations",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_publish_failure_total",
			Help: "Number of failed notifier publish operations",
		},
	)
	return off, lat, out, cand, suc, fail
}

func init() {
	offersBroadcast, acceptLatency, assignmentOutcomes, candidatesPerOffer, notifySuccess, notifyFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(offersBroadcast, acceptLatency, assignmentOutcomes, candidatesPerOffer, notifySuccess, notifyFailure)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	offersBroadcast, acceptLatency, assignmentOutcomes, candidatesPerOffer, notifySuccess, notifyFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
