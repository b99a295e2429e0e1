// Package merge groups compatible pending orders into merge groups before
// dispatch so one partner can collect several orders in a single trip.
// Merging is a best-effort optimization: evaluation errors never block
// checkout.
package merge

import (
	"context"
	"sort"
	"time"

	"github.com/mergeeats/core/core/logger"
	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/order"
)

// Config holds the deployment-tunable merge parameters.
type Config struct {
	// RadiusKM is the maximum drop-off distance between two mergeable orders.
	RadiusKM float64 `json:"radius_km"`
	// WindowMinutes is the maximum creation-time spread between members.
	WindowMinutes int `json:"window_minutes"`
	// MaxGroupSize caps group membership.
	MaxGroupSize int `json:"max_group_size"`
	// BasePrepMinutes is the assumed restaurant preparation time used for
	// the pickup window and delivery estimate.
	BasePrepMinutes int `json:"base_prep_minutes"`
	// PerStopMinutes is the delivery-time penalty per additional drop-off.
	PerStopMinutes int `json:"per_stop_minutes"`
}

// DefaultConfig mirrors the production defaults of the merge policy.
func DefaultConfig() Config {
	return Config{
		RadiusKM:        2.0,
		WindowMinutes:   10,
		MaxGroupSize:    5,
		BasePrepMinutes: 30,
		PerStopMinutes:  8,
	}
}

func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.RadiusKM <= 0 {
		c.RadiusKM = d.RadiusKM
	}
	if c.WindowMinutes <= 0 {
		c.WindowMinutes = d.WindowMinutes
	}
	if c.MaxGroupSize <= 0 {
		c.MaxGroupSize = d.MaxGroupSize
	}
	if c.BasePrepMinutes <= 0 {
		c.BasePrepMinutes = d.BasePrepMinutes
	}
	if c.PerStopMinutes <= 0 {
		c.PerStopMinutes = d.PerStopMinutes
	}
}

// Result describes the outcome of one merge evaluation.
type Result struct {
	Merged   bool
	Group    model.MergeGroup
	JoinedID string // the sibling order when a new pair was formed
}

// Engine evaluates merge candidates against the order store. The store owns
// the group records; the engine only decides.
type Engine struct {
	store order.Store
	cfg   Config
	log   logger.Logger
	now   func() time.Time
}

// NewEngine creates a merge engine bound to the store.
func NewEngine(store order.Store, cfg Config, log logger.Logger) *Engine {
	cfg.SetDefaults()
	return &Engine{store: store, cfg: cfg, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

type candidate struct {
	order    model.Order
	distance float64
}

// Evaluate runs synchronously on order creation, before the restaurant can
// confirm. It attaches o to the best existing group below the size cap, or
// forms a new group with the single best ungrouped candidate, or leaves the
// order ungrouped. Ties break by closest distance, then earlier creation.
func (e *Engine) Evaluate(ctx context.Context, o model.Order) (Result, error) {
	if o.DeliveryAddress.Point.IsZero() {
		return Result{}, nil
	}
	siblings, err := e.store.ListByRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return Result{}, err
	}

	window := time.Duration(e.cfg.WindowMinutes) * time.Minute
	var cands []candidate
	for _, s := range siblings {
		if s.ID == o.ID {
			continue
		}
		if s.Status != model.StatusPending && s.Status != model.StatusConfirmed {
			continue
		}
		if s.DeliveryAddress.Point.IsZero() {
			continue
		}
		if gap := o.CreatedAt.Sub(s.CreatedAt); gap < -window || gap > window {
			continue
		}
		d := o.DeliveryAddress.Point.DistanceKM(s.DeliveryAddress.Point)
		if d > e.cfg.RadiusKM {
			continue
		}
		cands = append(cands, candidate{order: s, distance: d})
	}
	if len(cands) == 0 {
		return Result{}, nil
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].distance != cands[j].distance {
			return cands[i].distance < cands[j].distance
		}
		return cands[i].order.CreatedAt.Before(cands[j].order.CreatedAt)
	})

	// Prefer an existing group that still has room and open membership.
	for _, c := range cands {
		g, grouped := e.store.GroupForOrder(ctx, c.order.ID)
		if !grouped {
			continue
		}
		if g.Size() >= e.cfg.MaxGroupSize {
			continue
		}
		joined, err := e.store.AddToGroup(ctx, g.ID, o.ID, e.deliveryEstimate(g.Size()+1))
		if err != nil {
			// Frozen or raced groups are skipped, not fatal.
			e.log.Debugf("merge: join group %s skipped: %v", g.ID, err)
			continue
		}
		return Result{Merged: true, Group: joined}, nil
	}

	// No joinable group: pair with the single best ungrouped candidate.
	for _, c := range cands {
		if _, grouped := e.store.GroupForOrder(ctx, c.order.ID); grouped {
			continue
		}
		start := earliest(o.CreatedAt, c.order.CreatedAt).Add(time.Duration(e.cfg.BasePrepMinutes) * time.Minute)
		g, err := e.store.CreateGroup(ctx, model.MergeGroup{
			RestaurantID:      o.RestaurantID,
			OrderIDs:          []string{c.order.ID, o.ID},
			PickupWindowStart: start,
			PickupWindowEnd:   start.Add(window),
			EstimatedDelivery: e.deliveryEstimate(2),
		})
		if err != nil {
			e.log.Debugf("merge: pair with %s skipped: %v", c.order.ID, err)
			continue
		}
		return Result{Merged: true, Group: g, JoinedID: c.order.ID}, nil
	}
	return Result{}, nil
}

// deliveryEstimate follows the base-preparation-plus-per-stop model.
func (e *Engine) deliveryEstimate(stops int) time.Time {
	est := time.Duration(e.cfg.BasePrepMinutes) * time.Minute
	if stops > 1 {
		est += time.Duration((stops-1)*e.cfg.PerStopMinutes) * time.Minute
	}
	return e.now().Add(est)
}

// TimeSavingsMinutes estimates the minutes saved by a merged trip, reported
// on the ORDERS_MERGED event.
func TimeSavingsMinutes(groupSize int) int {
	if groupSize < 2 {
		return 0
	}
	return (groupSize - 1) * 12
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
