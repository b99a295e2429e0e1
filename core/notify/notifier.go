// Package notify defines the realtime fan-out boundary. Delivery is
// at-least-once to currently connected subscribers with no replay;
// reconnecting clients resync via the snapshot read APIs.
package notify

import "time"

// Event types pushed to subscribed connections.
const (
	TypeOrderUpdate        = "ORDER_UPDATE"
	TypeOrdersMerged       = "ORDERS_MERGED"
	TypeNewDeliveryRequest = "NEW_DELIVERY_REQUEST"
	TypeDeliveryOutcome    = "DELIVERY_OUTCOME"
	TypeDispatchError      = "DISPATCH_ERROR"
)

// Event is the envelope written to subscribers.
type Event struct {
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Notifier fans events out to every subscriber of a topic.
type Notifier interface {
	Publish(topic string, ev Event) error
}

// Topic helpers. Subscriptions are keyed by role and identity.

// CustomerTopic addresses one customer's connections.
func CustomerTopic(customerID string) string { return "customer/" + customerID }

// MerchantTopic addresses the connections of one restaurant's merchant app.
func MerchantTopic(restaurantID string) string { return "merchant/" + restaurantID }

// PartnerTopic addresses one delivery partner's connections.
func PartnerTopic(partnerID string) string { return "partner/" + partnerID }

// NopNotifier drops every event. Used in tests and as a default.
type NopNotifier struct{}

func (NopNotifier) Publish(string, Event) error { return nil }
