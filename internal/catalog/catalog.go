// Package catalog resolves the services and providers a tenant offers.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

// Service is a bookable offering. Its duration is copied onto a booking at
// creation time and never re-read afterwards.
type Service struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Active          bool      `json:"active"`
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Validate checks the fields required to book the service.
func (s Service) Validate() error {
	if s.ID == uuid.Nil || s.TenantID == uuid.Nil {
		return apperr.Validation("service id and tenant id are required")
	}
	if s.DurationMinutes <= 0 {
		return apperr.Validation("service duration must be positive, got %d minutes", s.DurationMinutes)
	}
	if s.PriceCents < 0 {
		return apperr.Validation("service price must not be negative")
	}
	return nil
}

// Provider is a person whose time is booked.
type Provider struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Active   bool      `json:"active"`
}

// Catalog looks up services and providers.
type Catalog interface {
	GetService(ctx context.Context, id uuid.UUID) (Service, error)
	GetProvider(ctx context.Context, id uuid.UUID) (Provider, error)
}

// ProviderGetter is the part of Catalog needed for authorization checks.
type ProviderGetter interface {
	GetProvider(ctx context.Context, id uuid.UUID) (Provider, error)
}

// AuthorizeProvider loads the provider and checks that the caller in ctx may
// manage it. Providers of other tenants are reported as not found.
func AuthorizeProvider(ctx context.Context, providers ProviderGetter, providerID uuid.UUID) (Provider, error) {
	caller, ok := tenancy.CallerFromContext(ctx)
	if !ok {
		return Provider{}, apperr.Forbidden("authentication required")
	}
	provider, err := providers.GetProvider(ctx, providerID)
	if err != nil {
		return Provider{}, err
	}
	if provider.TenantID != caller.TenantID {
		return Provider{}, apperr.NotFound("provider")
	}
	if !caller.CanManageProvider(provider.TenantID, provider.ID) {
		return Provider{}, apperr.Forbidden("caller may not manage this provider")
	}
	return provider, nil
}
