package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusConfirmed
	StatusPreparing
	StatusReadyForPickup
	StatusAssigned
	StatusPickedUp
	StatusOnTheWay
	StatusDelivered
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:        "PENDING",
	StatusConfirmed:      "CONFIRMED",
	StatusPreparing:      "PREPARING",
	StatusReadyForPickup: "READY_FOR_PICKUP",
	StatusAssigned:       "ASSIGNED",
	StatusPickedUp:       "PICKED_UP",
	StatusOnTheWay:       "ON_THE_WAY",
	StatusDelivered:      "DELIVERED",
	StatusCancelled:      "CANCELLED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseStatus converts the wire representation back to a Status.
func ParseStatus(s string) (Status, error) {
	for st, n := range statusNames {
		if n == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// MarshalText implements encoding.TextMarshaler so statuses serialize by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// EventType identifies a state machine event.
type EventType int

const (
	EventUnknown EventType = iota
	EventConfirm
	EventStartPreparing
	EventMarkReady
	EventAssign
	EventPickup
	EventStartDelivery
	EventDeliver
	EventCancel
)

var eventNames = map[EventType]string{
	EventConfirm:        "CONFIRM",
	EventStartPreparing: "START_PREPARING",
	EventMarkReady:      "MARK_READY",
	EventAssign:         "ASSIGN",
	EventPickup:         "PICKUP",
	EventStartDelivery:  "START_DELIVERY",
	EventDeliver:        "DELIVER",
	EventCancel:         "CANCEL",
}

func (e EventType) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseEventType converts the wire representation back to an EventType.
func ParseEventType(s string) (EventType, error) {
	for et, n := range eventNames {
		if n == s {
			return et, nil
		}
	}
	return EventUnknown, fmt.Errorf("unknown event %q", s)
}

// Event carries a state machine event and its payload.
type Event struct {
	Type      EventType
	PartnerID string // set for ASSIGN
	Reason    string // set for CANCEL
}

// OrderItem is one line of an order. UnitPrice is resolved from the catalog
// at creation time, never trusted from the client.
type OrderItem struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is a geocoded delivery address.
type Address struct {
	Text  string   `json:"text"`
	Point GeoPoint `json:"point"`
}

// TransitionRecord is one entry of the append-only transition audit trail.
type TransitionRecord struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Event  string    `json:"event"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Dispatch flags recorded on an order when assignment cannot complete.
const (
	FlagUnassignedTimeout = "UNASSIGNED_TIMEOUT"
	FlagDispatchError     = "DISPATCH_ERROR"
)

// Order is the durable order record. TotalAmount is fixed at creation; all
// later mutation goes through the state machine via the store.
type Order struct {
	ID                string             `json:"id"`
	CustomerID        string             `json:"customer_id"`
	RestaurantID      string             `json:"restaurant_id"`
	Items             []OrderItem        `json:"items"`
	TotalAmount       decimal.Decimal    `json:"total_amount"`
	DeliveryFee       decimal.Decimal    `json:"delivery_fee"`
	DeliveryAddress   Address            `json:"delivery_address"`
	Status            Status             `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	MergeGroupID      string             `json:"merge_group_id,omitempty"`
	AssignedPartnerID string             `json:"assigned_partner_id,omitempty"`
	DispatchFlag      string             `json:"dispatch_flag,omitempty"`
	DeliveryException string             `json:"delivery_exception,omitempty"`
	Transitions       []TransitionRecord `json:"transitions"`
	Version           uint64             `json:"version"`
}

// MergeGroup bundles orders from one restaurant for single-trip delivery.
// Membership freezes once any member reaches CONFIRMED.
type MergeGroup struct {
	ID                string    `json:"id"`
	RestaurantID      string    `json:"restaurant_id"`
	OrderIDs          []string  `json:"order_ids"`
	AssignedPartnerID string    `json:"assigned_partner_id,omitempty"`
	PickupWindowStart time.Time `json:"pickup_window_start"`
	PickupWindowEnd   time.Time `json:"pickup_window_end"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	CreatedAt         time.Time `json:"created_at"`
}

// Size returns the current member count.
func (g MergeGroup) Size() int { return len(g.OrderIDs) }

// Contains reports whether orderID is a member of the group.
func (g MergeGroup) Contains(orderID string) bool {
	for _, id := range g.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// Assignment binds exactly one delivery partner to an order or merge group.
type Assignment struct {
	ID         string    `json:"id"`
	OrderIDs   []string  `json:"order_ids"`
	GroupID    string    `json:"group_id,omitempty"`
	PartnerID  string    `json:"partner_id"`
	AssignedAt time.Time `json:"assigned_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	Outcome    string    `json:"outcome,omitempty"` // DELIVERED or CANCELLED
}

// Open reports whether the assignment has not reached a terminal outcome.
func (a Assignment) Open() bool { return a.Outcome == "" }
