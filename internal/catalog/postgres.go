package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/database"
)

// PostgresCatalog reads services and providers from Postgres.
type PostgresCatalog struct {
	db database.Querier
}

// NewPostgresCatalog initializes a catalog backed by db.
func NewPostgresCatalog(db database.Querier) *PostgresCatalog {
	if db == nil {
		panic("catalog: db required")
	}
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	query := `
		SELECT id, tenant_id, name, duration_minutes, price_cents, active
		FROM services
		WHERE id = $1
	`
	var svc Service
	err := database.Conn(ctx, c.db).QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, apperr.NotFound("service")
	}
	if err != nil {
		return Service{}, fmt.Errorf("catalog: get service: %w", err)
	}
	return svc, nil
}

func (c *PostgresCatalog) GetProvider(ctx context.Context, id uuid.UUID) (Provider, error) {
	query := `
		SELECT id, tenant_id, name, email, active
		FROM providers
		WHERE id = $1
	`
	var p Provider
	err := database.Conn(ctx, c.db).QueryRow(ctx, query, id).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Email, &p.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Provider{}, apperr.NotFound("provider")
	}
	if err != nil {
		return Provider{}, fmt.Errorf("catalog: get provider: %w", err)
	}
	return p, nil
}

// PutService upserts a service row.
func (c *PostgresCatalog) PutService(ctx context.Context, svc Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO services (id, tenant_id, name, duration_minutes, price_cents, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			price_cents = EXCLUDED.price_cents,
			active = EXCLUDED.active
	`
	if _, err := database.Conn(ctx, c.db).Exec(ctx, query,
		svc.ID, svc.TenantID, svc.Name, svc.DurationMinutes, svc.PriceCents, svc.Active,
	); err != nil {
		return fmt.Errorf("catalog: put service: %w", err)
	}
	return nil
}

// PutProvider upserts a provider row.
func (c *PostgresCatalog) PutProvider(ctx context.Context, p Provider) error {
	if p.ID == uuid.Nil || p.TenantID == uuid.Nil {
		return apperr.Validation("provider id and tenant id are required")
	}
	query := `
		INSERT INTO providers (id, tenant_id, name, email, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			active = EXCLUDED.active
	`
	if _, err := database.Conn(ctx, c.db).Exec(ctx, query,
		p.ID, p.TenantID, p.Name, p.Email, p.Active,
	); err != nil {
		return fmt.Errorf("catalog: put provider: %w", err)
	}
	return nil
}
