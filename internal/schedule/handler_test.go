package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

func newTestRouter(t *testing.T, caller tenancy.Caller) (http.Handler, *MemoryStore, catalog.Provider) {
	t.Helper()
	cat := catalog.NewMemoryCatalog()
	provider := catalog.Provider{ID: uuid.New(), TenantID: caller.TenantID, Name: "Ana", Active: true}
	require.NoError(t, cat.PutProvider(context.Background(), provider))

	store := NewMemoryStore()
	h := NewHandler(store, cat, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithCaller(req.Context(), caller)))
		})
	})
	h.Routes(r)
	return r, store, provider
}

func TestHandlerSetAndGetWeek(t *testing.T) {
	caller := tenancy.Caller{UserID: uuid.New(), TenantID: uuid.New(), Role: tenancy.RoleAdmin}
	router, store, provider := newTestRouter(t, caller)

	body := `{"days":[{"day_of_week":0,"start_time":"09:00","end_time":"17:00","is_working":true}]}`
	req := httptest.NewRequest(http.MethodPut, "/providers/"+provider.ID.String()+"/schedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	day, err := store.GetDay(context.Background(), provider.ID, Monday)
	require.NoError(t, err)
	assert.True(t, day.Working)

	req = httptest.NewRequest(http.MethodGet, "/providers/"+provider.ID.String()+"/schedule", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WeekResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Days, DaysPerWeek)
	assert.Equal(t, MustClock("09:00"), resp.Days[0].Start)
	assert.False(t, resp.Days[1].Working)
}

func TestHandlerRejectsInvalidWeek(t *testing.T) {
	caller := tenancy.Caller{TenantID: uuid.New(), Role: tenancy.RoleOwner}
	router, _, provider := newTestRouter(t, caller)

	body := `{"days":[{"day_of_week":2,"start_time":"18:00","end_time":"09:00","is_working":true}]}`
	req := httptest.NewRequest(http.MethodPut, "/providers/"+provider.ID.String()+"/schedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestHandlerForbidsOtherProviders(t *testing.T) {
	tenantID := uuid.New()
	caller := tenancy.Caller{TenantID: tenantID, Role: tenancy.RoleProvider, ProviderID: uuid.New()}
	router, _, provider := newTestRouter(t, caller)

	req := httptest.NewRequest(http.MethodGet, "/providers/"+provider.ID.String()+"/schedule", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
