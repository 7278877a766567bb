package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/database"
)

// PostgresRegistry stores clients in the clients table.
type PostgresRegistry struct {
	db database.Querier
}

// NewPostgresRegistry initializes a registry backed by db.
func NewPostgresRegistry(db database.Querier) *PostgresRegistry {
	if db == nil {
		panic("clients: db required")
	}
	return &PostgresRegistry{db: db}
}

// GetOrCreate upserts on (tenant_id, email), refreshing phone and name.
func (r *PostgresRegistry) GetOrCreate(ctx context.Context, tenantID uuid.UUID, contact Contact) (Client, error) {
	contact = contact.Normalize()
	if err := contact.Validate(); err != nil {
		return Client{}, err
	}
	query := `
		INSERT INTO clients (id, tenant_id, email, phone, name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, email) DO UPDATE SET
			phone = EXCLUDED.phone,
			name = EXCLUDED.name
		RETURNING id, created_at
	`
	c := Client{TenantID: tenantID, Email: contact.Email, Phone: contact.Phone, Name: contact.Name}
	if err := database.Conn(ctx, r.db).QueryRow(ctx, query,
		uuid.New(), tenantID, contact.Email, contact.Phone, contact.Name,
	).Scan(&c.ID, &c.CreatedAt); err != nil {
		return Client{}, fmt.Errorf("clients: upsert: %w", err)
	}
	return c, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	query := `
		SELECT id, tenant_id, email, phone, name, created_at
		FROM clients
		WHERE id = $1
	`
	var c Client
	err := database.Conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TenantID, &c.Email, &c.Phone, &c.Name, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, apperr.NotFound("client")
	}
	if err != nil {
		return Client{}, fmt.Errorf("clients: get: %w", err)
	}
	return c, nil
}
