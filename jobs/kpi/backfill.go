package kpi

import (
	"github.com/mergeeats/core/core/dispatch/logging"
	"github.com/mergeeats/core/core/merge"
	kpicore "github.com/mergeeats/core/core/metrics/kpi"
)

// Backfill rebuilds daily partner KPIs from historical dispatch log records,
// used after enabling the KPI store on an existing deployment.
func Backfill(store kpicore.Store, history []logging.LogRecord) error {
	for _, rec := range history {
		if rec.PartnerID == "" || rec.Outcome != "assigned" {
			continue
		}
		r := kpicore.Record{
			PartnerID:   rec.PartnerID,
			Date:        kpicore.Day(rec.Timestamp),
			Assignments: len(rec.OrderIDs),
		}
		if rec.GroupID != "" {
			r.MergedOrders = len(rec.OrderIDs)
			r.MinutesSaved = float64(merge.TimeSavingsMinutes(len(rec.OrderIDs)))
		}
		if err := store.Add(r); err != nil {
			return err
		}
	}
	return nil
}
