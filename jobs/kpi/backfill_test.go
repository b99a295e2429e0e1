package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergeeats/core/core/dispatch/logging"
	kpicore "github.com/mergeeats/core/core/metrics/kpi"
)

type memStore struct {
	records []kpicore.Record
}

func (m *memStore) Add(r kpicore.Record) error { m.records = append(m.records, r); return nil }
func (m *memStore) Query(partnerID string, start, end time.Time) ([]kpicore.Record, error) {
	var res []kpicore.Record
	for _, r := range m.records {
		if r.PartnerID == partnerID {
			res = append(res, r)
		}
	}
	return res, nil
}
func (m *memStore) Close() error { return nil }

func TestBackfillSkipsUnassigned(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	history := []logging.LogRecord{
		{Timestamp: now, PartnerID: "p-1", Outcome: "assigned", OrderIDs: []string{"o1"}},
		{Timestamp: now, Outcome: "timeout", OrderIDs: []string{"o2"}},
		{Timestamp: now, PartnerID: "p-1", Outcome: "assigned", GroupID: "g1", OrderIDs: []string{"o3", "o4", "o5"}},
	}
	require.NoError(t, Backfill(store, history))
	require.Len(t, store.records, 2)

	assert.Equal(t, 1, store.records[0].Assignments)
	assert.Zero(t, store.records[0].MergedOrders)

	assert.Equal(t, 3, store.records[1].Assignments)
	assert.Equal(t, 3, store.records[1].MergedOrders)
	assert.Equal(t, float64(24), store.records[1].MinutesSaved)
}
