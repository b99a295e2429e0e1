// Package metrics defines the sink interface dispatch results are reported
// through. Implementations live in infra/metrics.
package metrics

import "time"

// AssignmentResult captures one terminal dispatch outcome for reporting.
type AssignmentResult struct {
	OfferID      string
	OrderIDs     []string
	GroupID      string
	RestaurantID string
	PartnerID    string
	Outcome      string // "assigned", "timeout" or "cancelled"
	RadiusKM     float64
	Attempt      int
	OfferLatency time.Duration
	Time         time.Time
}

// MetricsSink receives dispatch outcomes.
type MetricsSink interface {
	RecordAssignment(res AssignmentResult) error
}

// NopSink discards all results.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentResult) error { return nil }
