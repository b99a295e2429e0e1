package order

import (
	"fmt"

	"github.com/mergeeats/core/core/model"
)

// transitions holds the legal edges of the order lifecycle. CANCEL is handled
// separately because it is reachable from every state prior to PICKED_UP.
var transitions = map[model.Status]map[model.EventType]model.Status{
	model.StatusPending: {
		model.EventConfirm: model.StatusConfirmed,
	},
	model.StatusConfirmed: {
		model.EventStartPreparing: model.StatusPreparing,
	},
	model.StatusPreparing: {
		model.EventMarkReady: model.StatusReadyForPickup,
	},
	model.StatusReadyForPickup: {
		model.EventAssign: model.StatusAssigned,
	},
	model.StatusAssigned: {
		model.EventPickup: model.StatusPickedUp,
	},
	model.StatusPickedUp: {
		model.EventStartDelivery: model.StatusOnTheWay,
	},
	model.StatusOnTheWay: {
		model.EventDeliver: model.StatusDelivered,
	},
}

// Next is the pure state machine mapping. It returns the successor state for
// (current, event) or ErrIllegalTransition. It never mutates anything;
// callers apply the resulting state and timestamp.
func Next(current model.Status, ev model.Event) (model.Status, error) {
	if ev.Type == model.EventCancel {
		if cancellable(current) {
			return model.StatusCancelled, nil
		}
		return current, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev.Type, current)
	}
	if ev.Type == model.EventAssign && ev.PartnerID == "" {
		return current, fmt.Errorf("%w: ASSIGN without partner id", ErrIllegalTransition)
	}
	if next, ok := transitions[current][ev.Type]; ok {
		return next, nil
	}
	return current, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev.Type, current)
}

// cancellable reports whether the order may still be cancelled. Once picked
// up, only operational overrides outside this core may force-close it.
func cancellable(s model.Status) bool {
	switch s {
	case model.StatusPending, model.StatusConfirmed, model.StatusPreparing,
		model.StatusReadyForPickup, model.StatusAssigned:
		return true
	}
	return false
}

// MerchantEvent reports whether the event may be submitted by the merchant
// app. ASSIGN is reserved for the dispatch engine.
func MerchantEvent(t model.EventType) bool {
	switch t {
	case model.EventConfirm, model.EventStartPreparing, model.EventMarkReady:
		return true
	}
	return false
}

// PartnerEvent reports whether the event may be submitted by the assigned
// delivery partner.
func PartnerEvent(t model.EventType) bool {
	switch t {
	case model.EventPickup, model.EventStartDelivery, model.EventDeliver:
		return true
	}
	return false
}

// GroupStatus aggregates member states: the group's state is the minimum
// progress among non-cancelled members. Cancelled members do not hold the
// group back; a fully cancelled group reports CANCELLED.
func GroupStatus(members []model.Order) model.Status {
	min := model.StatusUnknown
	for _, o := range members {
		if o.Status == model.StatusCancelled {
			continue
		}
		if min == model.StatusUnknown || o.Status < min {
			min = o.Status
		}
	}
	if min == model.StatusUnknown {
		return model.StatusCancelled
	}
	return min
}
