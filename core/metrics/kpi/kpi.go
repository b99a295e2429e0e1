package kpi

import "time"

// Record aggregates a delivery partner's dispatch activity for one day.
type Record struct {
	PartnerID    string
	Date         time.Time
	Assignments  int
	MergedOrders int
	MinutesSaved float64
}

// MergeRatio returns the share of assigned orders that arrived merged.
func (r Record) MergeRatio() float64 {
	if r.Assignments == 0 {
		return 0
	}
	return float64(r.MergedOrders) / float64(r.Assignments)
}

// Day truncates t to midnight UTC, the aggregation key.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Store persists daily KPI records.
type Store interface {
	Add(r Record) error
	Query(partnerID string, start, end time.Time) ([]Record, error)
	Close() error
}
