package blocks

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

const defaultListWindow = 30 * 24 * time.Hour

// Handler serves the admin block endpoints.
type Handler struct {
	store     Store
	providers catalog.ProviderGetter
	logger    *logging.Logger
	now       func() time.Time
}

// NewHandler creates a blocks handler.
func NewHandler(store Store, providers catalog.ProviderGetter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, providers: providers, logger: logger, now: time.Now}
}

// CreateBlockRequest is the body of POST /admin/providers/{providerID}/blocks.
type CreateBlockRequest struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Reason      string      `json:"reason"`
	Description string      `json:"description"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
}

// ListBlocksResponse wraps the expanded blocks in a window.
type ListBlocksResponse struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Blocks []Block   `json:"blocks"`
}

// Routes mounts the handlers under /providers/{providerID}/blocks.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/providers/{providerID}/blocks", h.List)
	r.Post("/providers/{providerID}/blocks", h.Create)
	r.Delete("/providers/{providerID}/blocks/{blockID}", h.Delete)
}

// List handles GET /admin/providers/{providerID}/blocks?from=&to= (RFC 3339).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	from := h.now().UTC()
	to := from.Add(defaultListWindow)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apperr.WriteJSON(w, apperr.Validation("from must be RFC 3339"))
			return
		}
		from = parsed
		to = from.Add(defaultListWindow)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apperr.WriteJSON(w, apperr.Validation("to must be RFC 3339"))
			return
		}
		to = parsed
	}
	if !from.Before(to) {
		apperr.WriteJSON(w, apperr.Validation("from must be before to"))
		return
	}

	list, err := h.store.ListOverlapping(r.Context(), providerID, from, to)
	if err != nil {
		h.logger.Error("failed to list blocks", "provider_id", providerID, "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	if list == nil {
		list = []Block{}
	}
	writeJSON(w, http.StatusOK, ListBlocksResponse{From: from, To: to, Blocks: list})
}

// Create handles POST /admin/providers/{providerID}/blocks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req CreateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	b, err := h.store.Add(r.Context(), Block{
		ProviderID:  providerID,
		Start:       req.Start,
		End:         req.End,
		Reason:      req.Reason,
		Description: req.Description,
		Recurrence:  req.Recurrence,
	})
	if err != nil {
		h.logger.Warn("failed to add block", "provider_id", providerID, "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	h.logger.Info("block added", "provider_id", providerID, "block_id", b.ID, "recurring", b.Recurrence != nil)
	writeJSON(w, http.StatusCreated, b)
}

// Delete handles DELETE /admin/providers/{providerID}/blocks/{blockID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid block id"))
		return
	}
	if err := h.store.Delete(r.Context(), providerID, blockID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	h.logger.Info("block deleted", "provider_id", providerID, "block_id", blockID)
	w.WriteHeader(http.StatusNoContent)
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
