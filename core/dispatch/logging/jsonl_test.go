package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *JSONLStore {
	t.Helper()
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "dispatch.log"))
	require.NoError(t, err)
	return s
}

func TestJSONLStoreRoundTrip(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	recs := []LogRecord{
		{Timestamp: base, OfferID: "off-1", OrderIDs: []string{"o-1"}, RestaurantID: "rest-1", Outcome: "assigned", PartnerID: "p-1", RadiusKM: 3, Attempt: 1, Candidates: []string{"p-1", "p-2"}},
		{Timestamp: base.Add(time.Minute), OfferID: "off-2", OrderIDs: []string{"o-2", "o-3"}, GroupID: "g-1", RestaurantID: "rest-1", Outcome: "timeout", RadiusKM: 12, Attempt: 3, Candidates: []string{"p-2"}},
	}
	for _, r := range recs {
		require.NoError(t, s.Append(ctx, r))
	}

	got, err := s.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "off-1", got[0].OfferID)
	assert.Equal(t, []string{"o-2", "o-3"}, got[1].OrderIDs)
	assert.Equal(t, "g-1", got[1].GroupID)
}

func TestJSONLStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.log")
	ctx := context.Background()

	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, LogRecord{OfferID: "off-1", Outcome: "assigned"}))
	require.NoError(t, s.Close())

	s2, err := NewJSONLStore(path)
	require.NoError(t, err)
	got, err := s2.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "off-1", got[0].OfferID)
}

func TestQueryFilters(t *testing.T) {
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for name, s := range map[string]LogStore{
		"jsonl":  newFileStore(t),
		"memory": NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, LogRecord{Timestamp: base, OfferID: "off-1", OrderIDs: []string{"o-1"}, Outcome: "assigned", PartnerID: "p-1"}))
			require.NoError(t, s.Append(ctx, LogRecord{Timestamp: base.Add(time.Hour), OfferID: "off-2", OrderIDs: []string{"o-2"}, Outcome: "timeout", Candidates: []string{"p-1"}}))

			byOrder, err := s.Query(ctx, LogQuery{OrderID: "o-2"})
			require.NoError(t, err)
			require.Len(t, byOrder, 1)
			assert.Equal(t, "off-2", byOrder[0].OfferID)

			byOutcome, err := s.Query(ctx, LogQuery{Outcome: "assigned"})
			require.NoError(t, err)
			require.Len(t, byOutcome, 1)
			assert.Equal(t, "off-1", byOutcome[0].OfferID)

			// Partner filter matches winners and notified candidates alike.
			byPartner, err := s.Query(ctx, LogQuery{PartnerID: "p-1"})
			require.NoError(t, err)
			assert.Len(t, byPartner, 2)

			byWindow, err := s.Query(ctx, LogQuery{Start: base.Add(30 * time.Minute)})
			require.NoError(t, err)
			require.Len(t, byWindow, 1)
			assert.Equal(t, "off-2", byWindow[0].OfferID)
		})
	}
}
