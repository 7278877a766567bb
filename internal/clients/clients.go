// Package clients resolves the people who book appointments. A client is
// identified by email within a tenant.
package clients

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

// Client is a person who books appointments.
type Client struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is the client data submitted with a booking request.
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// Normalize trims the fields and lowercases the email.
func (c Contact) Normalize() Contact {
	return Contact{
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
		Name:  strings.TrimSpace(c.Name),
	}
}

// Validate requires all three fields and a parseable email.
func (c Contact) Validate() error {
	if c.Email == "" || c.Phone == "" || c.Name == "" {
		return apperr.Validation("client email, phone and name are required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return apperr.Validation("client email %q is invalid", c.Email)
	}
	return nil
}

// Registry finds or creates clients.
type Registry interface {
	GetOrCreate(ctx context.Context, tenantID uuid.UUID, contact Contact) (Client, error)
	Get(ctx context.Context, id uuid.UUID) (Client, error)
}
