// Package tenancy carries the tenant and the authenticated caller through
// request contexts.
package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	tenantKey ctxKey = "booking.tenant_id"
	callerKey ctxKey = "booking.caller"
)

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(tenantKey).(uuid.UUID)
	return tenantID, ok && tenantID != uuid.Nil
}

// Role is what an authenticated caller may do inside their tenant.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleClient   Role = "client"
)

// Caller is the identity resolved by the auth middleware.
type Caller struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	ProviderID uuid.UUID // set when Role is RoleProvider
	ClientID   uuid.UUID // set when Role is RoleClient
	Role       Role
}

// IsStaff reports whether the caller manages the whole tenant.
func (c Caller) IsStaff() bool {
	return c.Role == RoleOwner || c.Role == RoleAdmin
}

// CanManageProvider reports whether the caller may edit the provider's
// schedule, blocks and bookings.
func (c Caller) CanManageProvider(tenantID, providerID uuid.UUID) bool {
	if c.TenantID == uuid.Nil || c.TenantID != tenantID {
		return false
	}
	if c.IsStaff() {
		return true
	}
	return c.Role == RoleProvider && c.ProviderID != uuid.Nil && c.ProviderID == providerID
}

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok && caller.TenantID != uuid.Nil
}
