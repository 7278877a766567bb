package schedule

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

// Handler serves the admin schedule endpoints.
type Handler struct {
	store     Store
	providers catalog.ProviderGetter
	logger    *logging.Logger
}

// NewHandler creates a schedule handler.
func NewHandler(store Store, providers catalog.ProviderGetter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, providers: providers, logger: logger}
}

// WeekResponse lists all seven days, Monday first.
type WeekResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Days       []Entry   `json:"days"`
}

// SetWeekRequest is the body of PUT /admin/providers/{providerID}/schedule.
type SetWeekRequest struct {
	Days []Entry `json:"days"`
}

// Routes mounts the handlers under /providers/{providerID}/schedule.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/providers/{providerID}/schedule", h.GetWeek)
	r.Put("/providers/{providerID}/schedule", h.SetWeek)
}

// GetWeek handles GET /admin/providers/{providerID}/schedule.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	week, err := h.store.GetWeek(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to load schedule", "provider_id", providerID, "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WeekResponse{ProviderID: providerID, Days: week[:]})
}

// SetWeek handles PUT /admin/providers/{providerID}/schedule.
func (h *Handler) SetWeek(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req SetWeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	week, err := h.store.SetWeek(r.Context(), providerID, req.Days)
	if err != nil {
		h.logger.Warn("failed to set schedule", "provider_id", providerID, "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	h.logger.Info("schedule replaced", "provider_id", providerID)
	writeJSON(w, http.StatusOK, WeekResponse{ProviderID: providerID, Days: week[:]})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid provider id"))
		return uuid.Nil, false
	}
	if _, err := catalog.AuthorizeProvider(r.Context(), h.providers, providerID); err != nil {
		apperr.WriteJSON(w, err)
		return uuid.Nil, false
	}
	return providerID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
