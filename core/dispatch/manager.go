package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mergeeats/core/core/dispatch/logging"
	"github.com/mergeeats/core/core/events"
	"github.com/mergeeats/core/core/logger"
	"github.com/mergeeats/core/core/metrics"
	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/monitoring"
	"github.com/mergeeats/core/core/notify"
	"github.com/mergeeats/core/core/order"
	"github.com/mergeeats/core/core/partner"
	"github.com/mergeeats/core/internal/eventbus"
)

// Manager finds exactly one delivery partner for each ready order or merged
// bundle. It owns Assignment records and the partner capacity ledger; order
// state itself changes only through the store's atomic assign helpers, which
// is what makes the accept race first-writer-wins.
type Manager struct {
	store    order.Store
	catalog  order.Catalog
	partners *partner.Registry
	notifier notify.Notifier
	cfg      Config
	log      logger.Logger
	sink     metrics.MetricsSink
	bus      eventbus.EventBus
	logStore logging.LogStore

	mu           sync.Mutex
	offers       map[string]*offer
	offerByUnit  map[string]string
	closed       map[string]string // offer id -> terminal outcome
	assignments  map[string]*model.Assignment
	assignByUnit map[string]string

	now func() time.Time
}

// NewManager creates a dispatch manager.
func NewManager(store order.Store, catalog order.Catalog, partners *partner.Registry, notifier notify.Notifier, cfg Config, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Manager, error) {
	if store == nil || catalog == nil || partners == nil || notifier == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewManager")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		return nil, fmt.Errorf("dispatch: nil logger provided to NewManager")
	}
	return &Manager{
		store:        store,
		catalog:      catalog,
		partners:     partners,
		notifier:     notifier,
		cfg:          cfg,
		log:          log,
		sink:         sink,
		bus:          bus,
		offers:       make(map[string]*offer),
		offerByUnit:  make(map[string]string),
		closed:       make(map[string]string),
		assignments:  make(map[string]*model.Assignment),
		assignByUnit: make(map[string]string),
		now:          time.Now,
	}, nil
}

// SetLogStore configures the store used to persist dispatch decisions.
func (m *Manager) SetLogStore(store logging.LogStore) {
	m.mu.Lock()
	m.logStore = store
	m.mu.Unlock()
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Close stops all offer timers and releases resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, o := range m.offers {
		o.done = true
		if o.widenTimer != nil {
			o.widenTimer.Stop()
		}
	}
	m.offers = make(map[string]*offer)
	m.mu.Unlock()
	if m.bus != nil {
		m.bus.Close()
	}
	if m.logStore != nil {
		_ = m.logStore.Close()
	}
	return nil
}

// OnOrderReady is invoked after an order reaches READY_FOR_PICKUP. For a
// grouped order the offer opens only once every live member is ready; until
// then the call is a no-op.
func (m *Manager) OnOrderReady(ctx context.Context, o model.Order) error {
	if g, grouped := m.store.GroupForOrder(ctx, o.ID); grouped {
		members, err := m.store.GroupMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		if order.GroupStatus(members) != model.StatusReadyForPickup {
			return nil
		}
		return m.openOffer(ctx, g.ID, g.ID, memberIDs(members), o.RestaurantID, dropoffOf(members), g.EstimatedDelivery)
	}
	eta := o.CreatedAt.Add(time.Duration(m.cfg.DefaultETAMinutes) * time.Minute)
	return m.openOffer(ctx, o.ID, "", []string{o.ID}, o.RestaurantID, o.DeliveryAddress.Point, eta)
}

func memberIDs(members []model.Order) []string {
	ids := make([]string, 0, len(members))
	for _, o := range members {
		if o.Status != model.StatusCancelled {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// dropoffOf picks the first live drop-off as the representative point the
// candidate search advertises.
func dropoffOf(members []model.Order) model.GeoPoint {
	for _, o := range members {
		if o.Status != model.StatusCancelled && !o.DeliveryAddress.Point.IsZero() {
			return o.DeliveryAddress.Point
		}
	}
	return model.GeoPoint{}
}

func (m *Manager) openOffer(ctx context.Context, unitID, groupID string, orderIDs []string, restaurantID string, dropoff model.GeoPoint, eta time.Time) error {
	rest, err := m.catalog.Restaurant(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("dispatch: restaurant lookup: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.offerByUnit[unitID]; exists {
		m.mu.Unlock()
		return nil
	}
	o := &offer{
		id:             uuid.NewString(),
		unitID:         unitID,
		groupID:        groupID,
		orderIDs:       append([]string(nil), orderIDs...),
		restaurantID:   restaurantID,
		restaurantName: rest.Name,
		pickup:         rest.Location,
		dropoff:        dropoff,
		eta:            eta,
		radiusKM:       m.cfg.InitialRadiusKM,
		attempt:        1,
		createdAt:      m.now(),
		deadline:       m.now().Add(time.Duration(m.cfg.OfferTimeoutSeconds) * time.Second),
		notified:       make(map[string]bool),
		rejected:       make(map[string]bool),
	}
	m.offers[o.id] = o
	m.offerByUnit[unitID] = o.id
	targets := m.collectCandidatesLocked(o)
	o.widenTimer = time.AfterFunc(time.Duration(m.cfg.WidenIntervalSeconds)*time.Second, func() { m.widen(o.id) })
	req := o.request()
	m.mu.Unlock()

	m.log.Infof("offering %s %s to %d partners within %.1f km", o.unitLabel(), unitID, len(targets), o.radiusKM)
	if m.bus != nil {
		m.bus.Publish(events.OfferEvent{OfferID: o.id, OrderIDs: orderIDs, GroupID: groupID, RadiusKM: o.radiusKM, Attempt: 1, Candidates: len(targets)})
	}
	m.broadcast(ctx, o.id, req, targets)
	return nil
}

// collectCandidatesLocked extends the notified set with new eligible partners
// and returns the ids still to be contacted.
func (m *Manager) collectCandidatesLocked(o *offer) []string {
	cands := m.partners.Candidates(o.pickup, o.radiusKM)
	candidatesPerOffer.Observe(float64(len(cands)))
	var targets []string
	for _, p := range cands {
		if o.notified[p.ID] || o.rejected[p.ID] {
			continue
		}
		o.notified[p.ID] = true
		targets = append(targets, p.ID)
	}
	offersBroadcast.WithLabelValues(o.unitLabel()).Inc()
	return targets
}

// broadcast publishes the offer to each target with bounded backoff retries.
// Persistent failure surfaces as a DISPATCH_ERROR event on the affected
// orders rather than a silent drop.
func (m *Manager) broadcast(ctx context.Context, offerID string, req notify.NewDeliveryRequest, targets []string) {
	if len(targets) == 0 {
		return
	}
	backoff := time.Duration(m.cfg.BroadcastBackoffMS) * time.Millisecond
	var wg sync.WaitGroup
	for _, id := range targets {
		wg.Add(1)
		go func(partnerID string) {
			defer wg.Done()
			var err error
			for attempt := 0; attempt <= m.cfg.BroadcastMaxRetries; attempt++ {
				err = m.notifier.Publish(notify.PartnerTopic(partnerID), notify.Event{
					Type: notify.TypeNewDeliveryRequest,
					At:   m.now(),
					Data: req,
				})
				if err == nil {
					notifySuccess.Inc()
					return
				}
				notifyFailure.Inc()
				time.Sleep(backoff * time.Duration(1<<attempt))
			}
			m.log.Errorf("offer %s: broadcast to partner %s failed: %v", offerID, partnerID, err)
			monitoring.CaptureException(err, map[string]string{"module": "dispatch", "offer_id": offerID, "partner_id": partnerID})
			m.reportDispatchError(ctx, req.OrderIDs, fmt.Sprintf("broadcast to partner %s failed", partnerID))
		}(id)
	}
	wg.Wait()
}

// reportDispatchError marks the orders and informs merchant and customers.
func (m *Manager) reportDispatchError(ctx context.Context, orderIDs []string, reason string) {
	for _, id := range orderIDs {
		if err := m.store.SetDispatchFlag(ctx, id, model.FlagDispatchError); err != nil {
			m.log.Errorf("set dispatch flag on %s: %v", id, err)
			continue
		}
		o, err := m.store.GetOrder(ctx, id)
		if err != nil {
			continue
		}
		ev := notify.Event{Type: notify.TypeDispatchError, At: m.now(), Data: notify.DispatchError{OrderID: id, Flag: model.FlagDispatchError, Reason: reason}}
		m.publish(notify.MerchantTopic(o.RestaurantID), ev)
		m.publish(notify.CustomerTopic(o.CustomerID), ev)
	}
}

// widen is the timer-driven state check: double the radius, contact newly
// eligible partners, and escalate once the overall deadline passes.
func (m *Manager) widen(offerID string) {
	ctx := context.Background()

	m.mu.Lock()
	o, ok := m.offers[offerID]
	if !ok || o.done {
		m.mu.Unlock()
		return
	}
	if !m.now().Before(o.deadline) {
		m.mu.Unlock()
		m.expire(ctx, offerID)
		return
	}
	o.attempt++
	if o.radiusKM < m.cfg.MaxRadiusKM {
		o.radiusKM *= 2
		if o.radiusKM > m.cfg.MaxRadiusKM {
			o.radiusKM = m.cfg.MaxRadiusKM
		}
	}
	targets := m.collectCandidatesLocked(o)
	o.widenTimer = time.AfterFunc(time.Duration(m.cfg.WidenIntervalSeconds)*time.Second, func() { m.widen(offerID) })
	req := o.request()
	attempt := o.attempt
	radius := o.radiusKM
	m.mu.Unlock()

	m.log.Infof("offer %s widened to %.1f km (attempt %d), %d new candidates", offerID, radius, attempt, len(targets))
	if m.bus != nil {
		m.bus.Publish(events.OfferEvent{OfferID: offerID, OrderIDs: req.OrderIDs, GroupID: req.GroupID, RadiusKM: radius, Attempt: attempt, Candidates: len(targets)})
	}
	m.broadcast(ctx, offerID, req, targets)
}

// expire closes an offer nobody accepted: the orders are flagged
// UNASSIGNED_TIMEOUT for operator attention and everyone is told.
func (m *Manager) expire(ctx context.Context, offerID string) {
	m.mu.Lock()
	o, ok := m.offers[offerID]
	if !ok || o.done {
		m.mu.Unlock()
		return
	}
	m.closeOfferLocked(o, OutcomeTimeout)
	candidates := o.openCandidates()
	m.mu.Unlock()

	m.log.Warnf("offer %s expired after %d attempts, flagging %d orders", offerID, o.attempt, len(o.orderIDs))
	for _, id := range o.orderIDs {
		if err := m.store.SetDispatchFlag(ctx, id, model.FlagUnassignedTimeout); err != nil {
			m.log.Errorf("set timeout flag on %s: %v", id, err)
		}
	}
	outcomeEv := notify.Event{Type: notify.TypeDeliveryOutcome, At: m.now(), Data: notify.DeliveryOutcome{OfferID: offerID, Outcome: "expired"}}
	for _, pid := range candidates {
		m.publish(notify.PartnerTopic(pid), outcomeEv)
	}
	for _, id := range o.orderIDs {
		ord, err := m.store.GetOrder(ctx, id)
		if err != nil {
			continue
		}
		ev := notify.Event{Type: notify.TypeDispatchError, At: m.now(), Data: notify.DispatchError{OrderID: id, Flag: model.FlagUnassignedTimeout, Reason: "no partner accepted the delivery"}}
		m.publish(notify.MerchantTopic(ord.RestaurantID), ev)
		m.publish(notify.CustomerTopic(ord.CustomerID), ev)
	}
	m.finishOffer(ctx, o, OutcomeTimeout, "", "no partner accepted")
}

// Accept arbitrates the accept race for an offer. Exactly one caller wins;
// the rest receive order.ErrAlreadyAssigned, or order.ErrOrderCancelled when
// cancellation beat the accept.
func (m *Manager) Accept(ctx context.Context, offerID, partnerID string) (model.Assignment, error) {
	start := m.now()

	m.mu.Lock()
	o, ok := m.offers[offerID]
	if !ok || o.done {
		outcome := m.closed[offerID]
		m.mu.Unlock()
		if outcome == OutcomeCancelled {
			return model.Assignment{}, fmt.Errorf("offer %s: %w", offerID, order.ErrOrderCancelled)
		}
		return model.Assignment{}, fmt.Errorf("offer %s: %w", offerID, order.ErrAlreadyAssigned)
	}
	m.mu.Unlock()

	if err := m.partners.TryReserve(partnerID); err != nil {
		return model.Assignment{}, fmt.Errorf("accept: %w", err)
	}

	// The store's assign helpers are the single atomic decision point.
	var (
		assigned []model.Order
		err      error
	)
	if o.groupID != "" {
		assigned, err = m.store.AssignGroup(ctx, o.groupID, partnerID)
	} else {
		var one model.Order
		one, err = m.store.AssignOrder(ctx, o.unitID, partnerID)
		if err == nil {
			assigned = []model.Order{one}
		}
	}
	if err != nil {
		m.partners.Release(partnerID, false)
		if m.bus != nil {
			m.bus.Publish(events.AcceptEvent{OfferID: offerID, PartnerID: partnerID, Won: false, Err: err, Latency: m.now().Sub(start)})
		}
		return model.Assignment{}, err
	}

	m.mu.Lock()
	m.closeOfferLocked(o, OutcomeAssigned)
	a := &model.Assignment{
		ID:         uuid.NewString(),
		OrderIDs:   append([]string(nil), o.orderIDs...),
		GroupID:    o.groupID,
		PartnerID:  partnerID,
		AssignedAt: m.now(),
	}
	m.assignments[a.ID] = a
	m.assignByUnit[o.unitID] = a.ID
	losers := make([]string, 0, len(o.notified))
	for _, pid := range o.openCandidates() {
		if pid != partnerID {
			losers = append(losers, pid)
		}
	}
	m.mu.Unlock()

	latency := m.now().Sub(start)
	acceptLatency.WithLabelValues(o.unitLabel()).Observe(m.now().Sub(o.createdAt).Seconds())
	if m.bus != nil {
		m.bus.Publish(events.AcceptEvent{OfferID: offerID, PartnerID: partnerID, Won: true, Latency: latency})
	}
	m.log.Infof("offer %s accepted by partner %s", offerID, partnerID)

	goneEv := notify.Event{Type: notify.TypeDeliveryOutcome, At: m.now(), Data: notify.DeliveryOutcome{OfferID: offerID, Outcome: "accepted"}}
	for _, pid := range losers {
		m.publish(notify.PartnerTopic(pid), goneEv)
	}
	for _, ord := range assigned {
		m.publishOrderUpdate(ord)
	}
	m.finishOffer(ctx, o, OutcomeAssigned, partnerID, "")
	return *a, nil
}

// Reject removes the partner from this offer only; other offers still reach
// them.
func (m *Manager) Reject(offerID, partnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok || o.done {
		return fmt.Errorf("offer %s: %w", offerID, order.ErrNotFound)
	}
	o.rejected[partnerID] = true
	m.log.Debugf("offer %s rejected by partner %s", offerID, partnerID)
	return nil
}

// OnOrderCancelled withdraws in-flight offers covering the order. A merged
// bundle keeps its offer while any live member remains.
func (m *Manager) OnOrderCancelled(ctx context.Context, o model.Order) {
	m.mu.Lock()
	var target *offer
	for _, off := range m.offers {
		if off.done {
			continue
		}
		for _, id := range off.orderIDs {
			if id == o.ID {
				target = off
				break
			}
		}
		if target != nil {
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		m.releaseAssignment(ctx, o, OutcomeCancelled)
		return
	}
	if target.groupID != "" {
		members, err := m.store.GroupMembers(ctx, target.groupID)
		if err == nil && order.GroupStatus(members) != model.StatusCancelled {
			m.mu.Unlock()
			return
		}
	}
	m.closeOfferLocked(target, OutcomeCancelled)
	candidates := target.openCandidates()
	m.mu.Unlock()

	ev := notify.Event{Type: notify.TypeDeliveryOutcome, At: m.now(), Data: notify.DeliveryOutcome{OfferID: target.id, Outcome: "expired"}}
	for _, pid := range candidates {
		m.publish(notify.PartnerTopic(pid), ev)
	}
	m.finishOffer(ctx, target, OutcomeCancelled, "", o.ID+" cancelled")
}

// OnOrderClosed settles the assignment once its unit reaches a terminal
// state, releasing the partner's capacity.
func (m *Manager) OnOrderClosed(ctx context.Context, o model.Order) {
	outcome := OutcomeCancelled
	if o.Status == model.StatusDelivered {
		outcome = OutcomeAssigned
	}
	m.releaseAssignment(ctx, o, outcome)
}

func (m *Manager) releaseAssignment(ctx context.Context, o model.Order, outcome string) {
	unitID := o.ID
	if o.MergeGroupID != "" {
		unitID = o.MergeGroupID
		members, err := m.store.GroupMembers(ctx, o.MergeGroupID)
		if err != nil {
			return
		}
		for _, mem := range members {
			if !mem.Status.Terminal() {
				return
			}
		}
	}

	m.mu.Lock()
	aid, ok := m.assignByUnit[unitID]
	if !ok {
		m.mu.Unlock()
		return
	}
	a := m.assignments[aid]
	if a == nil || !a.Open() {
		m.mu.Unlock()
		return
	}
	a.ClosedAt = m.now()
	if outcome == OutcomeAssigned {
		a.Outcome = model.StatusDelivered.String()
	} else {
		a.Outcome = model.StatusCancelled.String()
	}
	partnerID := a.PartnerID
	m.mu.Unlock()

	m.partners.Release(partnerID, outcome == OutcomeAssigned)
	m.log.Infof("assignment %s closed: %s", aid, outcome)
}

// closeOfferLocked marks the offer terminal and stops its timer. Idempotent,
// an accept and an expiry may race to close the same offer.
func (m *Manager) closeOfferLocked(o *offer, outcome string) {
	if o.done {
		return
	}
	o.done = true
	if o.widenTimer != nil {
		o.widenTimer.Stop()
	}
	delete(m.offerByUnit, o.unitID)
	delete(m.offers, o.id)
	m.closed[o.id] = outcome
	assignmentOutcomes.WithLabelValues(outcome).Inc()
}

// finishOffer reports the terminal outcome to the sink, bus and audit log.
func (m *Manager) finishOffer(ctx context.Context, o *offer, outcome, partnerID, reason string) {
	if m.bus != nil {
		m.bus.Publish(events.OutcomeEvent{OfferID: o.id, Outcome: outcome, PartnerID: partnerID})
	}
	res := metrics.AssignmentResult{
		OfferID:      o.id,
		OrderIDs:     append([]string(nil), o.orderIDs...),
		GroupID:      o.groupID,
		RestaurantID: o.restaurantID,
		PartnerID:    partnerID,
		Outcome:      outcome,
		RadiusKM:     o.radiusKM,
		Attempt:      o.attempt,
		OfferLatency: m.now().Sub(o.createdAt),
		Time:         m.now(),
	}
	if err := m.sink.RecordAssignment(res); err != nil {
		m.log.Errorf("metrics error: %v", err)
	}
	m.mu.Lock()
	store := m.logStore
	m.mu.Unlock()
	if store != nil {
		rec := logging.LogRecord{
			Timestamp:    m.now(),
			OfferID:      o.id,
			OrderIDs:     append([]string(nil), o.orderIDs...),
			GroupID:      o.groupID,
			RestaurantID: o.restaurantID,
			Outcome:      outcome,
			PartnerID:    partnerID,
			RadiusKM:     o.radiusKM,
			Attempt:      o.attempt,
			Candidates:   o.openCandidates(),
			Reason:       reason,
		}
		if err := store.Append(ctx, rec); err != nil {
			m.log.Errorf("dispatch log append: %v", err)
		}
	}
}

// publishOrderUpdate pushes the order's new state to its customer and the
// restaurant's merchant app.
func (m *Manager) publishOrderUpdate(o model.Order) {
	ev := notify.Event{
		Type: notify.TypeOrderUpdate,
		At:   m.now(),
		Data: notify.OrderUpdate{
			OrderID:           o.ID,
			Status:            o.Status,
			MergeGroupID:      o.MergeGroupID,
			AssignedPartnerID: o.AssignedPartnerID,
			DispatchFlag:      o.DispatchFlag,
			DeliveryException: o.DeliveryException,
			TotalAmount:       o.TotalAmount,
		},
	}
	m.publish(notify.CustomerTopic(o.CustomerID), ev)
	m.publish(notify.MerchantTopic(o.RestaurantID), ev)
}

func (m *Manager) publish(topic string, ev notify.Event) {
	if err := m.notifier.Publish(topic, ev); err != nil {
		notifyFailure.Inc()
		m.log.Errorf("notify %s: %v", topic, err)
		return
	}
	notifySuccess.Inc()
}

// Assignments returns a snapshot of assignments, open ones only when
// activeOnly is set.
func (m *Manager) Assignments(activeOnly bool) []model.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Assignment, 0, len(m.assignments))
	for _, a := range m.assignments {
		if activeOnly && !a.Open() {
			continue
		}
		res = append(res, *a)
	}
	return res
}

// OffersForPartner rebuilds the open offers currently addressed to the
// partner, used by the partner app to resync after a reconnect.
func (m *Manager) OffersForPartner(partnerID string) []notify.NewDeliveryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []notify.NewDeliveryRequest
	for _, o := range m.offers {
		if o.done || !o.notified[partnerID] || o.rejected[partnerID] {
			continue
		}
		res = append(res, o.request())
	}
	return res
}
