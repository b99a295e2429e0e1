package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mergeeats/core/core/model"
)

// MemoryStore is the in-process Store implementation. A single lock guards
// the maps; per-order serialization of ApplyTransition follows from it.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[string]*model.Order
	groups     map[string]*model.MergeGroup
	orderGroup map[string]string

	catalog Catalog
	fee     decimal.Decimal
	now     func() time.Time
}

// NewMemoryStore creates an empty store. deliveryFee is added to every
// order total at creation time.
func NewMemoryStore(catalog Catalog, deliveryFee decimal.Decimal) *MemoryStore {
	return &MemoryStore{
		orders:     make(map[string]*model.Order),
		groups:     make(map[string]*model.MergeGroup),
		orderGroup: make(map[string]string),
		catalog:    catalog,
		fee:        deliveryFee,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryStore) CreateOrder(ctx context.Context, in CreateOrderInput) (model.Order, error) {
	if in.CustomerID == "" || in.RestaurantID == "" {
		return model.Order{}, fmt.Errorf("%w: customer and restaurant ids are required", ErrValidation)
	}
	if len(in.Items) == 0 {
		return model.Order{}, fmt.Errorf("%w: order has no items", ErrValidation)
	}
	if in.Address.Text == "" {
		return model.Order{}, fmt.Errorf("%w: delivery address is required", ErrValidation)
	}

	rest, err := s.catalog.Restaurant(ctx, in.RestaurantID)
	if err != nil {
		return model.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !rest.Open {
		return model.Order{}, fmt.Errorf("%w: restaurant %s is closed", ErrValidation, in.RestaurantID)
	}

	items := make([]model.OrderItem, 0, len(in.Items))
	total := decimal.Zero
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return model.Order{}, fmt.Errorf("%w: quantity must be positive for item %s", ErrValidation, it.MenuItemID)
		}
		mi, err := s.catalog.MenuItem(ctx, in.RestaurantID, it.MenuItemID)
		if err != nil {
			return model.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := mi.Validate(); err != nil {
			return model.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		line := model.OrderItem{
			MenuItemID: mi.ID,
			Name:       mi.Name,
			UnitPrice:  mi.Price,
			Quantity:   it.Quantity,
		}
		items = append(items, line)
		total = total.Add(line.Subtotal())
	}

	o := &model.Order{
		ID:              uuid.NewString(),
		CustomerID:      in.CustomerID,
		RestaurantID:    in.RestaurantID,
		Items:           items,
		TotalAmount:     total.Add(s.fee),
		DeliveryFee:     s.fee,
		DeliveryAddress: in.Address,
		Status:          model.StatusPending,
		CreatedAt:       s.now(),
		Version:         1,
	}

	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
	return clone(o), nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return clone(o), nil
}

func (s *MemoryStore) ListByCustomer(_ context.Context, customerID string) ([]model.Order, error) {
	return s.list(func(o *model.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *MemoryStore) ListByRestaurant(_ context.Context, restaurantID string) ([]model.Order, error) {
	return s.list(func(o *model.Order) bool { return o.RestaurantID == restaurantID }), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, st model.Status) ([]model.Order, error) {
	return s.list(func(o *model.Order) bool { return o.Status == st }), nil
}

func (s *MemoryStore) list(match func(*model.Order) bool) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Order, 0)
	for _, o := range s.orders {
		if match(o) {
			res = append(res, clone(o))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}

func (s *MemoryStore) ApplyTransition(_ context.Context, orderID string, ev model.Event, expectedVersion uint64) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if expectedVersion != 0 && o.Version != expectedVersion {
		return model.Order{}, fmt.Errorf("%w: order %s at version %d, expected %d", ErrConflict, orderID, o.Version, expectedVersion)
	}

	// Post-assignment a merged bundle is picked up and delivered as one unit.
	if gid, grouped := s.orderGroup[orderID]; grouped && PartnerEvent(ev.Type) {
		if g := s.groups[gid]; g != nil && g.AssignedPartnerID != "" {
			return s.transitionGroupLocked(g, ev, orderID)
		}
	}
	if err := s.transitionLocked(o, ev); err != nil {
		return model.Order{}, err
	}
	return clone(o), nil
}

// transitionGroupLocked applies a partner event to every non-cancelled member
// of an assigned bundle and returns the requested order's new state.
func (s *MemoryStore) transitionGroupLocked(g *model.MergeGroup, ev model.Event, requested string) (model.Order, error) {
	members := make([]*model.Order, 0, len(g.OrderIDs))
	for _, id := range g.OrderIDs {
		o := s.orders[id]
		if o == nil || o.Status == model.StatusCancelled {
			continue
		}
		members = append(members, o)
	}
	// Legality and partner ownership are checked against all members before
	// any is mutated.
	for _, o := range members {
		if ev.PartnerID != o.AssignedPartnerID {
			return model.Order{}, fmt.Errorf("group %s assigned to %q, event from %q: %w", g.ID, o.AssignedPartnerID, ev.PartnerID, ErrWrongPartner)
		}
		if _, err := Next(o.Status, ev); err != nil {
			return model.Order{}, fmt.Errorf("group %s member %s: %w", g.ID, o.ID, err)
		}
	}
	for _, o := range members {
		if err := s.transitionLocked(o, ev); err != nil {
			return model.Order{}, err
		}
	}
	req, ok := s.orders[requested]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", requested, ErrNotFound)
	}
	return clone(req), nil
}

func (s *MemoryStore) transitionLocked(o *model.Order, ev model.Event) error {
	if ev.Type == model.EventAssign {
		if o.Status == model.StatusCancelled {
			return fmt.Errorf("order %s: %w", o.ID, ErrOrderCancelled)
		}
		if o.AssignedPartnerID != "" {
			return fmt.Errorf("order %s held by partner %s: %w", o.ID, o.AssignedPartnerID, ErrAlreadyAssigned)
		}
	}
	if PartnerEvent(ev.Type) && ev.PartnerID != o.AssignedPartnerID {
		return fmt.Errorf("order %s assigned to %q, event from %q: %w", o.ID, o.AssignedPartnerID, ev.PartnerID, ErrWrongPartner)
	}
	next, err := Next(o.Status, ev)
	if err != nil {
		return err
	}
	rec := model.TransitionRecord{
		From:   o.Status,
		To:     next,
		Event:  ev.Type.String(),
		Reason: ev.Reason,
		At:     s.now(),
	}
	o.Status = next
	o.Transitions = append(o.Transitions, rec)
	o.Version++
	if ev.Type == model.EventAssign {
		o.AssignedPartnerID = ev.PartnerID
	}
	return nil
}

func (s *MemoryStore) SetDispatchFlag(_ context.Context, orderID, flag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	o.DispatchFlag = flag
	o.Version++
	return nil
}

func (s *MemoryStore) SetDeliveryException(_ context.Context, orderID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	o.DeliveryException = reason
	o.Version++
	return nil
}

func (s *MemoryStore) AssignOrder(_ context.Context, orderID, partnerID string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err := s.transitionLocked(o, model.Event{Type: model.EventAssign, PartnerID: partnerID}); err != nil {
		return model.Order{}, err
	}
	return clone(o), nil
}

func (s *MemoryStore) AssignGroup(_ context.Context, groupID, partnerID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	if g.AssignedPartnerID != "" {
		return nil, fmt.Errorf("group %s held by partner %s: %w", groupID, g.AssignedPartnerID, ErrAlreadyAssigned)
	}
	members := make([]*model.Order, 0, len(g.OrderIDs))
	for _, id := range g.OrderIDs {
		if o := s.orders[id]; o != nil && o.Status != model.StatusCancelled {
			members = append(members, o)
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrOrderCancelled)
	}
	ev := model.Event{Type: model.EventAssign, PartnerID: partnerID}
	for _, o := range members {
		if _, err := Next(o.Status, ev); err != nil {
			return nil, fmt.Errorf("group %s member %s: %w", groupID, o.ID, err)
		}
	}
	res := make([]model.Order, 0, len(members))
	for _, o := range members {
		if err := s.transitionLocked(o, ev); err != nil {
			return nil, err
		}
		res = append(res, clone(o))
	}
	g.AssignedPartnerID = partnerID
	return res, nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, g model.MergeGroup) (model.MergeGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(g.OrderIDs) < 2 {
		return model.MergeGroup{}, fmt.Errorf("%w: a merge group needs at least two orders", ErrValidation)
	}
	for _, id := range g.OrderIDs {
		o, ok := s.orders[id]
		if !ok {
			return model.MergeGroup{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		if o.RestaurantID != g.RestaurantID {
			return model.MergeGroup{}, fmt.Errorf("%w: order %s is for another restaurant", ErrValidation, id)
		}
		if _, grouped := s.orderGroup[id]; grouped {
			return model.MergeGroup{}, fmt.Errorf("%w: order %s already grouped", ErrValidation, id)
		}
	}
	g.ID = uuid.NewString()
	g.CreatedAt = s.now()
	stored := g
	stored.OrderIDs = append([]string(nil), g.OrderIDs...)
	s.groups[g.ID] = &stored
	for _, id := range g.OrderIDs {
		s.orderGroup[id] = g.ID
		s.orders[id].MergeGroupID = g.ID
		s.orders[id].Version++
	}
	return g, nil
}

func (s *MemoryStore) AddToGroup(_ context.Context, groupID, orderID string, estimatedDelivery time.Time) (model.MergeGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return model.MergeGroup{}, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	o, ok := s.orders[orderID]
	if !ok {
		return model.MergeGroup{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if o.RestaurantID != g.RestaurantID {
		return model.MergeGroup{}, fmt.Errorf("%w: order %s is for another restaurant", ErrValidation, orderID)
	}
	if _, grouped := s.orderGroup[orderID]; grouped {
		return model.MergeGroup{}, fmt.Errorf("%w: order %s already grouped", ErrValidation, orderID)
	}
	for _, id := range g.OrderIDs {
		m := s.orders[id]
		if m != nil && m.Status != model.StatusCancelled && m.Status >= model.StatusConfirmed {
			return model.MergeGroup{}, fmt.Errorf("group %s: %w", groupID, ErrGroupFrozen)
		}
	}
	g.OrderIDs = append(g.OrderIDs, orderID)
	if !estimatedDelivery.IsZero() {
		g.EstimatedDelivery = estimatedDelivery
	}
	s.orderGroup[orderID] = groupID
	o.MergeGroupID = groupID
	o.Version++
	return cloneGroup(g), nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (model.MergeGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return model.MergeGroup{}, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	return cloneGroup(g), nil
}

func (s *MemoryStore) GroupForOrder(_ context.Context, orderID string) (model.MergeGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gid, ok := s.orderGroup[orderID]
	if !ok {
		return model.MergeGroup{}, false
	}
	g, ok := s.groups[gid]
	if !ok {
		return model.MergeGroup{}, false
	}
	return cloneGroup(g), true
}

func (s *MemoryStore) GroupMembers(_ context.Context, groupID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	members := make([]model.Order, 0, len(g.OrderIDs))
	for _, id := range g.OrderIDs {
		if o := s.orders[id]; o != nil {
			members = append(members, clone(o))
		}
	}
	return members, nil
}

// clone copies an order so callers never alias store-owned state.
func clone(o *model.Order) model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	c.Transitions = append([]model.TransitionRecord(nil), o.Transitions...)
	return c
}

func cloneGroup(g *model.MergeGroup) model.MergeGroup {
	c := *g
	c.OrderIDs = append([]string(nil), g.OrderIDs...)
	return c
}
