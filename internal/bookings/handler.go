package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/clients"
	"github.com/wolfman30/booking-platform/internal/tenancy"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

const dateLayout = "2006-01-02"

// Handler exposes the booking service over HTTP.
type Handler struct {
	service *Service
	loc     *time.Location
	logger  *logging.Logger
}

// NewHandler creates a bookings handler. loc is the zone calendar dates and
// slot labels are rendered in; nil means UTC.
func NewHandler(service *Service, loc *time.Location, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, loc: loc, logger: logger}
}

// PublicRoutes mounts availability and anonymous booking endpoints. The
// caller is expected to run tenant resolution before these handlers.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/availability/slots", h.GetSlots)
	r.Get("/availability/check", h.CheckSlot)
	r.Post("/bookings", h.Create)
	r.Post("/bookings/{bookingID}/confirm", h.Confirm)
	r.Post("/bookings/{bookingID}/cancel", h.Cancel)
}

// AdminRoutes mounts the authenticated booking endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/bookings", h.List)
	r.Get("/bookings/{bookingID}", h.Get)
	r.Put("/bookings/{bookingID}", h.Update)
	r.Post("/bookings/{bookingID}/cancel", h.AdminCancel)
	r.Post("/bookings/{bookingID}/complete", h.Complete)
	r.Post("/bookings/{bookingID}/no-show", h.NoShow)
}

// SlotsResponse lists the free start times of one day.
type SlotsResponse struct {
	ProviderID uuid.UUID   `json:"provider_id"`
	ServiceID  uuid.UUID   `json:"service_id"`
	Date       string      `json:"date"`
	Timezone   string      `json:"timezone"`
	Slots      []string    `json:"slots"`
	Starts     []time.Time `json:"starts"`
}

// CheckResponse answers a single availability check.
type CheckResponse struct {
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// CreateBookingRequest is the body of POST /api/v1/bookings.
type CreateBookingRequest struct {
	ProviderID uuid.UUID       `json:"provider_id"`
	ServiceID  uuid.UUID       `json:"service_id"`
	Start      time.Time       `json:"start"`
	Client     clients.Contact `json:"client"`
	Notes      string          `json:"notes,omitempty"`
}

// CreateBookingResponse carries the capability tokens, which are only ever
// returned here and in notification emails.
type CreateBookingResponse struct {
	Booking           *Booking `json:"booking"`
	ConfirmationToken string   `json:"confirmation_token"`
	CancellationToken string   `json:"cancellation_token"`
}

// TokenRequest is the body of the confirm and cancel endpoints.
type TokenRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason,omitempty"`
}

// UpdateBookingRequest is the body of PUT /admin/bookings/{bookingID}. Either
// field may be omitted.
type UpdateBookingRequest struct {
	Start *time.Time `json:"start,omitempty"`
	Notes *string    `json:"notes,omitempty"`
}

// ListBookingsResponse wraps a page of bookings.
type ListBookingsResponse struct {
	Bookings []*Booking `json:"bookings"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

// GetSlots handles GET /api/v1/availability/slots?provider_id=&date=&service_id=.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID, serviceID, err := parseProviderAndService(q.Get("provider_id"), q.Get("service_id"))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	date, err := time.ParseInLocation(dateLayout, q.Get("date"), h.loc)
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("date must be YYYY-MM-DD"))
		return
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), providerID, date, serviceID)
	if err != nil {
		h.logFailure("failed to list slots", err, "provider_id", providerID)
		apperr.WriteJSON(w, err)
		return
	}
	resp := SlotsResponse{
		ProviderID: providerID,
		ServiceID:  serviceID,
		Date:       date.Format(dateLayout),
		Timezone:   h.loc.String(),
		Slots:      make([]string, 0, len(slots)),
		Starts:     slots,
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.In(h.loc).Format("15:04"))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckSlot handles GET /api/v1/availability/check?provider_id=&start=&service_id=.
func (h *Handler) CheckSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID, serviceID, err := parseProviderAndService(q.Get("provider_id"), q.Get("service_id"))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("start must be RFC 3339"))
		return
	}
	ok, err := h.service.IsAvailable(r.Context(), providerID, start, serviceID)
	if err != nil {
		h.logFailure("failed to check slot", err, "provider_id", providerID)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Start: start, Available: ok})
}

// Create handles POST /api/v1/bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.Validation("tenant is required"))
		return
	}
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	b, err := h.service.CreateBooking(r.Context(), CreateParams{
		TenantID:   tenantID,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		Client:     req.Client,
		Start:      req.Start,
		Notes:      req.Notes,
	})
	if err != nil {
		h.logFailure("failed to create booking", err, "provider_id", req.ProviderID)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateBookingResponse{
		Booking:           b,
		ConfirmationToken: b.ConfirmationToken,
		CancellationToken: b.CancellationToken,
	})
}

// Confirm handles POST /api/v1/bookings/{bookingID}/confirm. The token may
// come in the body or as ?token= so email links work unchanged.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	req, err := decodeToken(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	b, err := h.service.ConfirmBooking(r.Context(), id, req.Token)
	if err != nil {
		h.logFailure("failed to confirm booking", err, "booking_id", id)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Cancel handles POST /api/v1/bookings/{bookingID}/cancel. A token takes
// precedence; otherwise an authenticated caller in the context is used.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	req, err := decodeToken(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	params := CancelParams{Token: req.Token, Reason: req.Reason}
	if params.Token == "" {
		if caller, ok := tenancy.CallerFromContext(r.Context()); ok {
			params.Caller = &caller
		}
	}
	h.cancel(w, r, id, params)
}

// AdminCancel handles POST /admin/bookings/{bookingID}/cancel.
func (h *Handler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	req, err := decodeToken(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	h.cancel(w, r, id, CancelParams{Caller: &caller, Reason: req.Reason})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, id uuid.UUID, params CancelParams) {
	b, err := h.service.CancelBooking(r.Context(), id, params)
	if err != nil {
		h.logFailure("failed to cancel booking", err, "booking_id", id)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// List handles GET /admin/bookings?provider_id=&client_id=&status=&from=&to=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	list, err := h.service.ListBookings(r.Context(), f, caller)
	if err != nil {
		h.logFailure("failed to list bookings", err, "tenant_id", caller.TenantID)
		apperr.WriteJSON(w, err)
		return
	}
	if list == nil {
		list = []*Booking{}
	}
	f = f.normalized()
	writeJSON(w, http.StatusOK, ListBookingsResponse{Bookings: list, Limit: f.Limit, Offset: f.Offset})
}

// Get handles GET /admin/bookings/{bookingID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(r.Context(), id, caller)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Update handles PUT /admin/bookings/{bookingID}: reschedule, notes, or both.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	var req UpdateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	b, err := h.service.UpdateBooking(r.Context(), id, UpdateParams{Start: req.Start, Notes: req.Notes}, caller)
	if err != nil {
		h.logFailure("failed to update booking", err, "booking_id", id)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Complete handles POST /admin/bookings/{bookingID}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.attend(w, r, h.service.CompleteBooking)
}

// NoShow handles POST /admin/bookings/{bookingID}/no-show.
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.attend(w, r, h.service.MarkNoShow)
}

func (h *Handler) attend(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID, caller tenancy.Caller) (*Booking, error)) {
	id, caller, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	b, err := fn(r.Context(), id, caller)
	if err != nil {
		h.logFailure("failed to close booking", err, "booking_id", id)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) adminTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, tenancy.Caller, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return uuid.Nil, tenancy.Caller{}, false
	}
	id, ok := bookingID(w, r)
	if !ok {
		return uuid.Nil, tenancy.Caller{}, false
	}
	return id, caller, true
}

// logFailure logs server-side failures at error level and client mistakes at
// debug level.
func (h *Handler) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, args...)
		return
	}
	h.logger.Debug(msg, args...)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (tenancy.Caller, bool) {
	caller, ok := tenancy.CallerFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.Forbidden("authentication required"))
		return tenancy.Caller{}, false
	}
	return caller, true
}

func bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid booking id"))
		return uuid.Nil, false
	}
	return id, true
}

func parseProviderAndService(providerRaw, serviceRaw string) (uuid.UUID, uuid.UUID, error) {
	providerID, err := uuid.Parse(providerRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.Validation("provider_id must be a uuid")
	}
	serviceID, err := uuid.Parse(serviceRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.Validation("service_id must be a uuid")
	}
	return providerID, serviceID, nil
}

// decodeToken reads an optional JSON body and falls back to ?token=.
func decodeToken(r *http.Request) (TokenRequest, error) {
	var req TokenRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return TokenRequest{}, apperr.Validation("invalid request body")
		}
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	return req, nil
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter
	var err error
	if v := q.Get("provider_id"); v != "" {
		if f.ProviderID, err = uuid.Parse(v); err != nil {
			return Filter{}, apperr.Validation("provider_id must be a uuid")
		}
	}
	if v := q.Get("client_id"); v != "" {
		if f.ClientID, err = uuid.Parse(v); err != nil {
			return Filter{}, apperr.Validation("client_id must be a uuid")
		}
	}
	if v := q.Get("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			st, err := ParseStatus(part)
			if err != nil {
				return Filter{}, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := q.Get("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return Filter{}, apperr.Validation("from must be RFC 3339")
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return Filter{}, apperr.Validation("to must be RFC 3339")
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return Filter{}, apperr.Validation("limit must be a number")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return Filter{}, apperr.Validation("offset must be a number")
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
