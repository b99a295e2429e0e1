package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRoundTrip(t *testing.T) {
	for st := StatusPending; st <= StatusCancelled; st++ {
		parsed, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	_, err := ParseStatus("SHIPPED")
	assert.Error(t, err)
}

func TestStatusJSONByName(t *testing.T) {
	b, err := json.Marshal(StatusReadyForPickup)
	require.NoError(t, err)
	assert.Equal(t, `"READY_FOR_PICKUP"`, string(b))

	var st Status
	require.NoError(t, json.Unmarshal([]byte(`"ON_THE_WAY"`), &st))
	assert.Equal(t, StatusOnTheWay, st)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusAssigned.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestParseEventType(t *testing.T) {
	et, err := ParseEventType("START_PREPARING")
	require.NoError(t, err)
	assert.Equal(t, EventStartPreparing, et)

	_, err = ParseEventType("EXPLODE")
	assert.Error(t, err)
}

func TestOrderItemSubtotal(t *testing.T) {
	it := OrderItem{UnitPrice: decimal.RequireFromString("4.25"), Quantity: 3}
	assert.True(t, it.Subtotal().Equal(decimal.RequireFromString("12.75")))
}

func TestMenuItemValidate(t *testing.T) {
	ok := MenuItem{ID: "m-1", Price: decimal.NewFromInt(5), Available: true}
	assert.NoError(t, ok.Validate())

	off := MenuItem{ID: "m-2", Available: false}
	assert.Error(t, off.Validate())

	neg := MenuItem{ID: "m-3", Price: decimal.NewFromInt(-1), Available: true}
	assert.Error(t, neg.Validate())
}

func TestMergeGroupHelpers(t *testing.T) {
	g := MergeGroup{OrderIDs: []string{"o-1", "o-2"}}
	assert.Equal(t, 2, g.Size())
	assert.True(t, g.Contains("o-2"))
	assert.False(t, g.Contains("o-3"))
}

func TestAssignmentOpen(t *testing.T) {
	assert.True(t, Assignment{}.Open())
	assert.False(t, Assignment{Outcome: "DELIVERED"}.Open())
}

func TestPartnerAvailability(t *testing.T) {
	assert.True(t, PartnerOnline.AvailableForDelivery())
	assert.False(t, PartnerOffline.AvailableForDelivery())
	assert.False(t, PartnerOnBreak.AvailableForDelivery())

	p := DeliveryPartner{Capacity: 1}
	assert.True(t, p.UnderCapacity())
	p.ActiveJobs = 1
	assert.False(t, p.UnderCapacity())
}
