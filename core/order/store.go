package order

import (
	"context"
	"time"

	"github.com/mergeeats/core/core/model"
)

// ItemInput references a catalog menu item on checkout. Prices are resolved
// server-side; client-supplied amounts are ignored.
type ItemInput struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// CreateOrderInput is the checkout payload.
type CreateOrderInput struct {
	CustomerID   string        `json:"customer_id"`
	RestaurantID string        `json:"restaurant_id"`
	Items        []ItemInput   `json:"items"`
	Address      model.Address `json:"address"`
}

// Store is the single source of truth for orders and merge groups. All order
// mutation goes through ApplyTransition (or the Assign CAS helpers, which are
// transition wrappers); reads have no side effects.
//
// ApplyTransition calls for the same order are serialized. A non-zero
/// expectedVersion turns the call into an optimistic write: a mismatch fails
// with ErrConflict and the caller must re-read and retry.
type Store interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]model.Order, error)
	ListByStatus(ctx context.Context, st model.Status) ([]model.Order, error)

	ApplyTransition(ctx context.Context, orderID string, ev model.Event, expectedVersion uint64) (model.Order, error)
	SetDispatchFlag(ctx context.Context, orderID, flag string) error
	SetDeliveryException(ctx context.Context, orderID, reason string) error

	// AssignOrder and AssignGroup are the dispatch engine's atomic
	// first-writer-wins decision points. Losers receive ErrAlreadyAssigned;
	// accepts after cancellation receive ErrOrderCancelled.
	AssignOrder(ctx context.Context, orderID, partnerID string) (model.Order, error)
	AssignGroup(ctx context.Context, groupID, partnerID string) ([]model.Order, error)

	CreateGroup(ctx context.Context, g model.MergeGroup) (model.MergeGroup, error)
	AddToGroup(ctx context.Context, groupID, orderID string, estimatedDelivery time.Time) (model.MergeGroup, error)
	GetGroup(ctx context.Context, id string) (model.MergeGroup, error)
	GroupForOrder(ctx context.Context, orderID string) (model.MergeGroup, bool)
	GroupMembers(ctx context.Context, groupID string) ([]model.Order, error)
}
