package partners

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mergeeats/core/core/dispatch"
	"github.com/mergeeats/core/core/logger"
	"github.com/mergeeats/core/core/model"
	"github.com/mergeeats/core/core/order"
	"github.com/mergeeats/core/core/partner"
)

// Handler exposes the delivery partner surface: telemetry updates, the offer
// inbox and the accept/reject race.
type Handler struct {
	registry *partner.Registry
	dsp      *dispatch.Manager
	log      logger.Logger
}

func NewHandler(registry *partner.Registry, dsp *dispatch.Manager, log logger.Logger) *Handler {
	return &Handler{registry: registry, dsp: dsp, log: log}
}

// Register mounts the partner and delivery routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/partners", h.list)
	mux.HandleFunc("POST /api/partners/{id}/location", h.location)
	mux.HandleFunc("POST /api/partners/{id}/availability", h.availability)
	mux.HandleFunc("GET /api/partners/{id}/offers", h.offers)
	mux.HandleFunc("POST /api/deliveries/{offerID}/accept", h.accept)
	mux.HandleFunc("POST /api/deliveries/{offerID}/reject", h.reject)
	mux.HandleFunc("GET /api/deliveries/assignments", h.assignments)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

type locationRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix millis
}

func (h *Handler) location(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	at := time.Now()
	if req.Timestamp > 0 {
		at = time.UnixMilli(req.Timestamp)
	}
	h.registry.UpdateLocation(r.PathValue("id"), model.GeoPoint{Lat: req.Lat, Lon: req.Lon}, at)
	w.WriteHeader(http.StatusNoContent)
}

type availabilityRequest struct {
	Status string `json:"status"`
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	st := model.PartnerStatus(req.Status)
	switch st {
	case model.PartnerOnline, model.PartnerOffline, model.PartnerOnBreak:
	default:
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	h.registry.SetStatus(r.PathValue("id"), st)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) offers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dsp.OffersForPartner(r.PathValue("id")))
}

type acceptRequest struct {
	PartnerID string `json:"partner_id"`
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PartnerID == "" {
		http.Error(w, "partner_id required", http.StatusBadRequest)
		return
	}
	a, err := h.dsp.Accept(r.Context(), r.PathValue("offerID"), req.PartnerID)
	if err != nil {
		h.log.Debugf("accept by %s failed: %v", req.PartnerID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PartnerID == "" {
		http.Error(w, "partner_id required", http.StatusBadRequest)
		return
	}
	if err := h.dsp.Reject(r.PathValue("offerID"), req.PartnerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignments(w http.ResponseWriter, r *http.Request) {
	active := r.URL.Query().Get("active") == "true"
	writeJSON(w, http.StatusOK, h.dsp.Assignments(active))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, partner.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrAlreadyAssigned), errors.Is(err, partner.ErrAtCapacity):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrOrderCancelled):
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
