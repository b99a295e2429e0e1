package notify

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mergeeats/core/core/model"
)

// OrderUpdate mirrors an order transition for customer and merchant apps.
type OrderUpdate struct {
	OrderID           string          `json:"order_id"`
	Status            model.Status    `json:"status"`
	MergeGroupID      string          `json:"merge_group_id,omitempty"`
	AssignedPartnerID string          `json:"assigned_partner_id,omitempty"`
	DispatchFlag      string          `json:"dispatch_flag,omitempty"`
	DeliveryException string          `json:"delivery_exception,omitempty"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

// OrdersMerged announces a new or extended merge group.
type OrdersMerged struct {
	GroupID            string   `json:"group_id"`
	RestaurantID       string   `json:"restaurant_id"`
	OrderIDs           []string `json:"order_ids"`
	OrderCount         int      `json:"order_count"`
	TimeSavingsMinutes int      `json:"estimated_time_savings_minutes"`
}

// NewDeliveryRequest is the dispatch offer broadcast to candidate partners.
type NewDeliveryRequest struct {
	OfferID      string         `json:"offer_id"`
	OrderIDs     []string       `json:"order_ids"`
	GroupID      string         `json:"group_id,omitempty"`
	RestaurantID string         `json:"restaurant_id"`
	Restaurant   string         `json:"restaurant"`
	Pickup       model.GeoPoint `json:"pickup"`
	Dropoff      model.GeoPoint `json:"dropoff"`
	ETA          time.Time      `json:"eta"`
}

// DeliveryOutcome tells a non-winning candidate the offer is gone.
type DeliveryOutcome struct {
	OfferID string `json:"offer_id"`
	Outcome string `json:"outcome"` // "accepted" or "expired"
}

// DispatchError reports a dispatch failure on an order to merchant and
// customer apps so a stalled assignment is never silent.
type DispatchError struct {
	OrderID string `json:"order_id"`
	Flag    string `json:"flag"`
	Reason  string `json:"reason"`
}
