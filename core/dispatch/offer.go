package dispatch

import (
	"time"

	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/notify"
)

// Terminal offer outcomes.
const (
	OutcomeAssigned  = "assigned"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// offer tracks one in-flight delivery offer. All fields are guarded by the
// manager lock; the widen timer re-enters through the manager.
type offer struct {
	id             string
	unitID         string // group id for bundles, order id otherwise
	groupID        string
	orderIDs       []string
	restaurantID   string
	restaurantName string
	pickup         model.GeoPoint
	dropoff        model.GeoPoint
	eta            time.Time

	radiusKM  float64
	attempt   int
	createdAt time.Time
	deadline  time.Time

	notified map[string]bool // partners holding this offer
	rejected map[string]bool // partners that declined, this offer only

	widenTimer *time.Timer
	done       bool
}

func (o *offer) unitLabel() string {
	if o.groupID != "" {
		return "bundle"
	}
	return "order"
}

// openCandidates returns the notified partners that have not rejected.
func (o *offer) openCandidates() []string {
	ids := make([]string, 0, len(o.notified))
	for id := range o.notified {
		if !o.rejected[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// request builds the NEW_DELIVERY_REQUEST payload for this offer.
func (o *offer) request() notify.NewDeliveryRequest {
	return notify.NewDeliveryRequest{
		OfferID:      o.id,
		OrderIDs:     append([]string(nil), o.orderIDs...),
		GroupID:      o.groupID,
		RestaurantID: o.restaurantID,
		Restaurant:   o.restaurantName,
		Pickup:       o.pickup,
		Dropoff:      o.dropoff,
		ETA:          o.eta,
	}
}
