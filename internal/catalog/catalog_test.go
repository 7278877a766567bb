package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

func TestServiceValidate(t *testing.T) {
	base := Service{ID: uuid.New(), TenantID: uuid.New(), DurationMinutes: 60}
	require.NoError(t, base.Validate())
	assert.Equal(t, time.Hour, base.Duration())

	zero := base
	zero.DurationMinutes = 0
	assert.ErrorIs(t, zero.Validate(), apperr.ErrValidation)

	negative := base
	negative.PriceCents = -1
	assert.ErrorIs(t, negative.Validate(), apperr.ErrValidation)
}

func TestMemoryCatalogLookups(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	svc := Service{ID: uuid.New(), TenantID: uuid.New(), Name: "Haircut", DurationMinutes: 30, Active: true}
	require.NoError(t, c.PutService(ctx, svc))

	got, err := c.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, svc, got)

	_, err = c.GetService(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = c.GetProvider(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAuthorizeProvider(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	tenantID := uuid.New()
	provider := Provider{ID: uuid.New(), TenantID: tenantID, Name: "Ana", Active: true}
	require.NoError(t, c.PutProvider(ctx, provider))

	_, err := AuthorizeProvider(ctx, c, provider.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	adminCtx := tenancy.WithCaller(ctx, tenancy.Caller{TenantID: tenantID, Role: tenancy.RoleAdmin})
	got, err := AuthorizeProvider(adminCtx, c, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, provider, got)

	otherTenant := tenancy.WithCaller(ctx, tenancy.Caller{TenantID: uuid.New(), Role: tenancy.RoleAdmin})
	_, err = AuthorizeProvider(otherTenant, c, provider.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	otherProvider := tenancy.WithCaller(ctx, tenancy.Caller{TenantID: tenantID, Role: tenancy.RoleProvider, ProviderID: uuid.New()})
	_, err = AuthorizeProvider(otherProvider, c, provider.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestPostgresCatalogGetService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := Service{ID: uuid.New(), TenantID: uuid.New(), Name: "Massage", DurationMinutes: 90, PriceCents: 12000, Active: true}
	mock.ExpectQuery("SELECT id, tenant_id, name, duration_minutes, price_cents, active").
		WithArgs(svc.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "duration_minutes", "price_cents", "active"}).
			AddRow(svc.ID, svc.TenantID, svc.Name, svc.DurationMinutes, svc.PriceCents, svc.Active))

	c := NewPostgresCatalog(mock)
	got, err := c.GetService(context.Background(), svc.ID)
	require.NoError(t, err)
	assert.Equal(t, svc, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogMissingProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, tenant_id, name, email, active").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresCatalog(mock).GetProvider(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogWrapsDriverErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, tenant_id, name, duration_minutes").
		WithArgs(id).
		WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresCatalog(mock).GetService(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: get service")
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
}
