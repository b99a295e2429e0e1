package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mergeeats/core/core/merge"
	core "github.com/mergeeats/core/core/metrics"
	"github.com/mergeeats/core/core/metrics/kpi"
)

// KPISink aggregates assignment outcomes into daily per-partner KPIs.
type KPISink struct {
	store       kpi.Store
	assignments *prometheus.GaugeVec
	mergeRatio  *prometheus.GaugeVec
	saved       *prometheus.GaugeVec
}

// NewKPISink creates a sink with Prometheus gauges registered on reg.
func NewKPISink(store kpi.Store, reg prometheus.Registerer) *KPISink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "partner_daily_assignments",
		Help: "Deliveries assigned to a partner per day",
	}, []string{"partner_id", "day"})
	mergeRatio := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "partner_daily_merge_ratio",
		Help: "Daily share of a partner's orders that arrived merged",
	}, []string{"partner_id", "day"})
	saved := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "partner_daily_minutes_saved",
		Help: "Daily road minutes saved by merged pickups per partner",
	}, []string{"partner_id", "day"})
	reg.MustRegister(assignments, mergeRatio, saved)
	return &KPISink{store: store, assignments: assignments, mergeRatio: mergeRatio, saved: saved}
}

// RecordAssignment folds a won assignment into the partner's daily record.
// Timeouts and cancellations carry no partner and are skipped.
func (s *KPISink) RecordAssignment(res core.AssignmentResult) error {
	if res.PartnerID == "" {
		return nil
	}
	rec := kpi.Record{
		PartnerID:   res.PartnerID,
		Date:        res.Time,
		Assignments: len(res.OrderIDs),
	}
	if res.GroupID != "" {
		rec.MergedOrders = len(res.OrderIDs)
		rec.MinutesSaved = float64(merge.TimeSavingsMinutes(len(res.OrderIDs)))
	}
	if err := s.store.Add(rec); err != nil {
		return err
	}
	dayStr := kpi.Day(res.Time).Format("2006-01-02")
	records, _ := s.store.Query(res.PartnerID, res.Time, res.Time)
	if len(records) > 0 {
		r := records[0]
		s.assignments.WithLabelValues(res.PartnerID, dayStr).Set(float64(r.Assignments))
		s.mergeRatio.WithLabelValues(res.PartnerID, dayStr).Set(r.MergeRatio())
		s.saved.WithLabelValues(res.PartnerID, dayStr).Set(r.MinutesSaved)
	}
	return nil
}
