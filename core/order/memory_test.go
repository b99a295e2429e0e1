package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergeeats/core/core/model"
)

func testCatalog() *StaticCatalog {
	c := NewStaticCatalog()
	c.AddRestaurant(
		model.Restaurant{ID: "rest-1", Name: "Chez Test", Location: model.GeoPoint{Lat: 48.85, Lon: 2.35}, Open: true},
		[]model.MenuItem{
			{ID: "item-1", Name: "Bowl", Price: decimal.NewFromInt(12), Available: true},
			{ID: "item-2", Name: "Soda", Price: decimal.RequireFromString("2.50"), Available: true},
			{ID: "item-off", Name: "Seasonal", Price: decimal.NewFromInt(9), Available: false},
		},
	)
	c.AddRestaurant(
		model.Restaurant{ID: "rest-closed", Name: "Closed", Open: false},
		[]model.MenuItem{{ID: "item-1", Name: "Bowl", Price: decimal.NewFromInt(12), Available: true}},
	)
	return c
}

func testStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(testCatalog(), decimal.RequireFromString("2.99"))
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	return s
}

func createOrder(t *testing.T, s *MemoryStore, customer string) model.Order {
	t.Helper()
	o, err := s.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID:   customer,
		RestaurantID: "rest-1",
		Items:        []ItemInput{{MenuItemID: "item-1", Quantity: 1}},
		Address:      model.Address{Text: "10 rue du Test", Point: model.GeoPoint{Lat: 48.86, Lon: 2.36}},
	})
	require.NoError(t, err)
	return o
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	s := testStore(t)
	o, err := s.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID:   "cust-1",
		RestaurantID: "rest-1",
		Items: []ItemInput{
			{MenuItemID: "item-1", Quantity: 2},
			{MenuItemID: "item-2", Quantity: 1},
		},
		Address: model.Address{Text: "10 rue du Test"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, uint64(1), o.Version)
	// 2*12 + 2.50 + 2.99 fee
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("29.49")), "got %s", o.TotalAmount)
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.NewFromInt(12)))
}

func TestCreateOrderValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	addr := model.Address{Text: "10 rue du Test"}

	cases := []struct {
		name string
		in   CreateOrderInput
	}{
		{"missing customer", CreateOrderInput{RestaurantID: "rest-1", Items: []ItemInput{{MenuItemID: "item-1", Quantity: 1}}, Address: addr}},
		{"no items", CreateOrderInput{CustomerID: "c", RestaurantID: "rest-1", Address: addr}},
		{"no address", CreateOrderInput{CustomerID: "c", RestaurantID: "rest-1", Items: []ItemInput{{MenuItemID: "item-1", Quantity: 1}}}},
		{"unknown restaurant", CreateOrderInput{CustomerID: "c", RestaurantID: "nope", Items: []ItemInput{{MenuItemID: "item-1", Quantity: 1}}, Address: addr}},
		{"closed restaurant", CreateOrderInput{CustomerID: "c", RestaurantID: "rest-closed", Items: []ItemInput{{MenuItemID: "item-1", Quantity: 1}}, Address: addr}},
		{"unknown item", CreateOrderInput{CustomerID: "c", RestaurantID: "rest-1", Items: []ItemInput{{MenuItemID: "nope", Quantity: 1}}, Address: addr}},
		{"unavailable item", CreateOrderInput{CustomerID: "c", RestaurantID: "rest-1", Items: []ItemInput{{MenuItemID: "item-off", Quantity: 1}}, Address: addr}},
		{"zero quantity", CreateOrderInput{CustomerID: "c", RestaurantID: "rest-1", Items: []ItemInput{{MenuItemID: "item-1", Quantity: 0}}, Address: addr}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := s.CreateOrder(ctx, c.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestApplyTransitionRecordsAuditTrail(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	o := createOrder(t, s, "cust-1")

	o2, err := s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventConfirm}, o.Version)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, o2.Status)
	assert.Equal(t, o.Version+1, o2.Version)
	require.Len(t, o2.Transitions, 1)
	assert.Equal(t, model.StatusPending, o2.Transitions[0].From)
	assert.Equal(t, model.StatusConfirmed, o2.Transitions[0].To)
	assert.Equal(t, "CONFIRM", o2.Transitions[0].Event)
}

func TestApplyTransitionVersionConflict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	o := createOrder(t, s, "cust-1")

	_, err := s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventConfirm}, o.Version+5)
	assert.ErrorIs(t, err, ErrConflict)

	// Zero skips the optimistic check.
	_, err = s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventConfirm}, 0)
	assert.NoError(t, err)
}

func TestApplyTransitionUnknownOrder(t *testing.T) {
	s := testStore(t)
	_, err := s.ApplyTransition(context.Background(), "nope", model.Event{Type: model.EventConfirm}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignOrderRaceSingleWinner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	o := createOrder(t, s, "cust-1")
	for _, ev := range []model.EventType{model.EventConfirm, model.EventStartPreparing, model.EventMarkReady} {
		_, err := s.ApplyTransition(ctx, o.ID, model.Event{Type: ev}, 0)
		require.NoError(t, err)
	}

	won, err := s.AssignOrder(ctx, o.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", won.AssignedPartnerID)

	_, err = s.AssignOrder(ctx, o.ID, "p-2")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestAssignCancelledOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	o := createOrder(t, s, "cust-1")
	_, err := s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventCancel, Reason: "changed my mind"}, 0)
	require.NoError(t, err)

	_, err = s.AssignOrder(ctx, o.ID, "p-1")
	assert.ErrorIs(t, err, ErrOrderCancelled)
}

func TestCreateGroupValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createOrder(t, s, "cust-a")
	b := createOrder(t, s, "cust-b")

	_, err := s.CreateGroup(ctx, model.MergeGroup{RestaurantID: "rest-1", OrderIDs: []string{a.ID}})
	assert.ErrorIs(t, err, ErrValidation)

	g, err := s.CreateGroup(ctx, model.MergeGroup{RestaurantID: "rest-1", OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)

	// Members cannot be grouped twice.
	c := createOrder(t, s, "cust-c")
	_, err = s.CreateGroup(ctx, model.MergeGroup{RestaurantID: "rest-1", OrderIDs: []string{a.ID, c.ID}})
	assert.ErrorIs(t, err, ErrValidation)

	got, ok := s.GroupForOrder(ctx, a.ID)
	require.True(t, ok)
	assert.Equal(t, g.ID, got.ID)

	oa, err := s.GetOrder(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, oa.MergeGroupID)
}

func TestAddToGroupFreezesOnConfirm(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createOrder(t, s, "cust-a")
	b := createOrder(t, s, "cust-b")
	c := createOrder(t, s, "cust-c")

	g, err := s.CreateGroup(ctx, model.MergeGroup{RestaurantID: "rest-1", OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)

	_, err = s.ApplyTransition(ctx, a.ID, model.Event{Type: model.EventConfirm}, 0)
	require.NoError(t, err)

	_, err = s.AddToGroup(ctx, g.ID, c.ID, time.Time{})
	assert.ErrorIs(t, err, ErrGroupFrozen)
}

func TestAssignGroupSkipsCancelledMembers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createOrder(t, s, "cust-a")
	b := createOrder(t, s, "cust-b")
	g, err := s.CreateGroup(ctx, model.MergeGroup{RestaurantID: "rest-1", OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)

	for _, id := range []string{a.ID, b.ID} {
		for _, ev := range []model.EventType{model.EventConfirm, model.EventStartPreparing, model.EventMarkReady} {
			_, err := s.ApplyTransition(ctx, id, model.Event{Type: ev}, 0)
			require.NoError(t, err)
		}
	}
	_, err = s.ApplyTransition(ctx, b.ID, model.Event{Type: model.EventCancel}, 0)
	require.NoError(t, err)

	assigned, err := s.AssignGroup(ctx, g.ID, "p-1")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, a.ID, assigned[0].ID)

	_, err = s.AssignGroup(ctx, g.ID, "p-2")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestPartnerEventMovesWholeBundle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createOrder(t, s, "cust-a")
	b := createOrder(t, s, "cust-b")
	g, err := s.CreateGroup(ctx, model.MergeGroup{RestaurantID: "rest-1", OrderIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)

	for _, id := range []string{a.ID, b.ID} {
		for _, ev := range []model.EventType{model.EventConfirm, model.EventStartPreparing, model.EventMarkReady} {
			_, err := s.ApplyTransition(ctx, id, model.Event{Type: ev}, 0)
			require.NoError(t, err)
		}
	}
	_, err = s.AssignGroup(ctx, g.ID, "p-1")
	require.NoError(t, err)

	// A pickup reported on one member advances both.
	got, err := s.ApplyTransition(ctx, a.ID, model.Event{Type: model.EventPickup, PartnerID: "p-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPickedUp, got.Status)

	ob, err := s.GetOrder(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPickedUp, ob.Status)
}

func TestPartnerEventRequiresAssignedPartner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	o := createOrder(t, s, "cust-a")
	for _, ev := range []model.EventType{model.EventConfirm, model.EventStartPreparing, model.EventMarkReady} {
		_, err := s.ApplyTransition(ctx, o.ID, model.Event{Type: ev}, 0)
		require.NoError(t, err)
	}
	assigned, err := s.AssignOrder(ctx, o.ID, "p-1")
	require.NoError(t, err)

	_, err = s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventPickup, PartnerID: "p-2"}, 0)
	assert.ErrorIs(t, err, ErrWrongPartner)
	_, err = s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventPickup}, 0)
	assert.ErrorIs(t, err, ErrWrongPartner)

	cur, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, cur.Status)
	assert.Equal(t, assigned.Version, cur.Version, "rejected events must not bump the version")

	got, err := s.ApplyTransition(ctx, o.ID, model.Event{Type: model.EventPickup, PartnerID: "p-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPickedUp, got.Status)
}

func TestListByStatusSortedByCreation(t *testing.T) {
	s := NewMemoryStore(testCatalog(), decimal.Zero)
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	n := 0
	s.SetClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	})
	ctx := context.Background()
	first := createOrder(t, s, "cust-a")
	second := createOrder(t, s, "cust-b")

	got, err := s.ListByStatus(ctx, model.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}
