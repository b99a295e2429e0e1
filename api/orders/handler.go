package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mergeeats/core/core/dispatch"
	"github.com/mergeeats/core/core/logger"
	"github.com/mergeeats/core/core/merge"
	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/notify"
	"github.com/mergeeats/core/core/order"
)

// Handler exposes the order lifecycle over HTTP. Merge evaluation runs
// synchronously on creation; dispatch hooks fire on READY_FOR_PICKUP,
// cancellation and terminal transitions.
type Handler struct {
	store    order.Store
	merger   *merge.Engine
	dsp      *dispatch.Manager
	notifier notify.Notifier
	log      logger.Logger
}

func NewHandler(store order.Store, merger *merge.Engine, dsp *dispatch.Manager, notifier notify.Notifier, log logger.Logger) *Handler {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Handler{store: store, merger: merger, dsp: dsp, notifier: notifier, log: log}
}

// Register mounts the order routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.create)
	mux.HandleFunc("GET /api/orders", h.list)
	mux.HandleFunc("GET /api/orders/{id}", h.get)
	mux.HandleFunc("GET /api/orders/{id}/group", h.group)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.transition)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /api/orders/{id}/exception", h.exception)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in order.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	o, err := h.store.CreateOrder(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	h.log.Infof("order %s created for restaurant %s", o.ID, o.RestaurantID)

	// Merge evaluation is best effort: a failure here must never fail the
	// checkout.
	if h.merger != nil {
		res, err := h.merger.Evaluate(r.Context(), o)
		if err != nil {
			h.log.Errorf("merge evaluation for %s: %v", o.ID, err)
		} else if res.Merged {
			if merged, err := h.store.GetOrder(r.Context(), o.ID); err != nil {
				h.log.Errorf("re-read of %s after merge: %v", o.ID, err)
			} else {
				o = merged
			}
			h.announceMerge(r.Context(), res.Group)
		}
	}

	h.publishUpdate(o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) announceMerge(ctx context.Context, g model.MergeGroup) {
	members, err := h.store.GroupMembers(ctx, g.ID)
	if err != nil {
		h.log.Errorf("group members for %s: %v", g.ID, err)
		return
	}
	payload := notify.OrdersMerged{
		GroupID:            g.ID,
		RestaurantID:       g.RestaurantID,
		OrderIDs:           g.OrderIDs,
		OrderCount:         g.Size(),
		TimeSavingsMinutes: merge.TimeSavingsMinutes(g.Size()),
	}
	ev := notify.Event{Type: notify.TypeOrdersMerged, At: time.Now(), Data: payload}
	h.publish(notify.MerchantTopic(g.RestaurantID), ev)
	for _, m := range members {
		h.publish(notify.CustomerTopic(m.CustomerID), ev)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		res []model.Order
		err error
	)
	switch {
	case q.Get("customer_id") != "":
		res, err = h.store.ListByCustomer(r.Context(), q.Get("customer_id"))
	case q.Get("restaurant_id") != "":
		res, err = h.store.ListByRestaurant(r.Context(), q.Get("restaurant_id"))
	case q.Get("status") != "":
		var st model.Status
		st, err = model.ParseStatus(q.Get("status"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err = h.store.ListByStatus(r.Context(), st)
	default:
		http.Error(w, "customer_id, restaurant_id or status filter required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) group(w http.ResponseWriter, r *http.Request) {
	g, ok := h.store.GroupForOrder(r.Context(), r.PathValue("id"))
	if !ok {
		http.Error(w, "order is not merged", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type transitionRequest struct {
	Event     string `json:"event"`
	Version   uint64 `json:"version"`
	PartnerID string `json:"partner_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	evType, err := model.ParseEventType(req.Event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !order.MerchantEvent(evType) && !order.PartnerEvent(evType) {
		// ASSIGN happens through the accept endpoint, CANCEL through the
		// cancel endpoint.
		http.Error(w, "event not allowed on this endpoint", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	o, err := h.store.ApplyTransition(r.Context(), id, model.Event{Type: evType, PartnerID: req.PartnerID, Reason: req.Reason}, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	h.log.Infof("order %s moved to %s", o.ID, o.Status)
	h.afterTransition(r, o)
	writeJSON(w, http.StatusOK, o)
}

// afterTransition fans out notifications and dispatch hooks for the new
// state. Partner events on a merged order move the whole bundle, so every
// member gets an update.
func (h *Handler) afterTransition(r *http.Request, o model.Order) {
	moved := []model.Order{o}
	if o.MergeGroupID != "" {
		if members, err := h.store.GroupMembers(r.Context(), o.MergeGroupID); err == nil {
			moved = members
		}
	}
	for _, m := range moved {
		h.publishUpdate(m)
	}

	if h.dsp == nil {
		return
	}
	switch {
	case o.Status == model.StatusReadyForPickup:
		if err := h.dsp.OnOrderReady(r.Context(), o); err != nil {
			h.log.Errorf("dispatch for %s: %v", o.ID, err)
		}
	case o.Status.Terminal():
		h.dsp.OnOrderClosed(r.Context(), o)
	}
}

type exceptionRequest struct {
	PartnerID string `json:"partner_id"`
	Reason    string `json:"reason"`
}

// exception records a delivery problem reported by the assigned partner,
// a failed handoff or an unreachable customer. The flag rides on the order
// without touching its lifecycle state, so the rest of a merged bundle
// continues unaffected.
func (h *Handler) exception(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, "reason required", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	o, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if o.AssignedPartnerID == "" || req.PartnerID != o.AssignedPartnerID {
		writeError(w, order.ErrWrongPartner)
		return
	}
	if o.Status.Terminal() {
		writeError(w, order.ErrIllegalTransition)
		return
	}
	if err := h.store.SetDeliveryException(r.Context(), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	o, err = h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.log.Warnf("delivery exception on %s: %s", o.ID, req.Reason)
	h.publishUpdate(o)
	writeJSON(w, http.StatusOK, o)
}

type cancelRequest struct {
	Version uint64 `json:"version"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	o, err := h.store.ApplyTransition(r.Context(), id, model.Event{Type: model.EventCancel, Reason: req.Reason}, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	h.log.Infof("order %s cancelled: %s", o.ID, req.Reason)
	if h.dsp != nil {
		h.dsp.OnOrderCancelled(r.Context(), o)
	}
	h.publishUpdate(o)
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) publishUpdate(o model.Order) {
	ev := notify.Event{
		Type: notify.TypeOrderUpdate,
		At:   time.Now(),
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
	h.publish(notify.CustomerTopic(o.CustomerID), ev)
	h.publish(notify.MerchantTopic(o.RestaurantID), ev)
}

func (h *Handler) publish(topic string, ev notify.Event) {
	if err := h.notifier.Publish(topic, ev); err != nil {
		h.log.Errorf("notify %s: %v", topic, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, order.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrIllegalTransition),
		errors.Is(err, order.ErrAlreadyAssigned),
		errors.Is(err, order.ErrGroupFrozen),
		errors.Is(err, order.ErrGroupFull):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrWrongPartner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, order.ErrOrderCancelled):
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
