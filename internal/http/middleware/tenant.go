package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

// TenantHeader is the header public clients name their tenant with.
const TenantHeader = "X-Tenant-Id"

// Tenant resolves the tenant for public endpoints. An authenticated caller's
// tenant wins; otherwise X-Tenant-Id is used when present.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, ok := tenancy.CallerFromContext(r.Context()); ok {
			next.ServeHTTP(w, r.WithContext(tenancy.WithTenantID(r.Context(), caller.TenantID)))
			return
		}
		raw := strings.TrimSpace(r.Header.Get(TenantHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			apperr.WriteJSON(w, apperr.Validation("%s must be a uuid", TenantHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithTenantID(r.Context(), tenantID)))
	})
}
