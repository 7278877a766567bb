package bootstrap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/booking-platform/internal/blocks"
	"github.com/wolfman30/booking-platform/internal/bookings"
	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/internal/clients"
	"github.com/wolfman30/booking-platform/internal/schedule"
)

// CatalogStore reads and writes services and providers.
type CatalogStore interface {
	catalog.Catalog
	PutService(ctx context.Context, svc catalog.Service) error
	PutProvider(ctx context.Context, p catalog.Provider) error
}

// Stores groups the persistence layer. The same engine runs on either the
// Postgres or the in-memory implementations.
type Stores struct {
	Catalog   CatalogStore
	Clients   clients.Registry
	Schedules schedule.Store
	Blocks    blocks.Store
	Ledger    bookings.Ledger
	Pool      *pgxpool.Pool
}

// Memory reports whether the stores live in process memory.
func (s *Stores) Memory() bool {
	return s.Pool == nil
}

// HealthCheck pings the database when there is one.
func (s *Stores) HealthCheck(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// NewMemoryStores builds empty in-memory stores. loc is the zone recurring
// blocks are expanded in and should match the engine's booking timezone.
func NewMemoryStores(loc *time.Location) *Stores {
	return &Stores{
		Catalog:   catalog.NewMemoryCatalog(),
		Clients:   clients.NewMemoryRegistry(),
		Schedules: schedule.NewMemoryStore(),
		Blocks:    blocks.NewMemoryStore(loc),
		Ledger:    bookings.NewMemoryLedger(),
	}
}

// NewPostgresStores builds the stores on pool.
func NewPostgresStores(pool *pgxpool.Pool, loc *time.Location) *Stores {
	if pool == nil {
		panic("bootstrap: pool required")
	}
	return &Stores{
		Catalog:   catalog.NewPostgresCatalog(pool),
		Clients:   clients.NewPostgresRegistry(pool),
		Schedules: schedule.NewPostgresStore(pool),
		Blocks:    blocks.NewPostgresStore(pool, loc),
		Ledger:    bookings.NewPostgresLedger(pool),
		Pool:      pool,
	}
}

// SeedResult holds the ids created by Seed.
type SeedResult struct {
	TenantID   uuid.UUID
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
}

// Seed creates a demo provider working 09:00-17:00 on weekdays and a 30
// minute service, for local runs.
func (s *Stores) Seed(ctx context.Context, tenantID uuid.UUID) (SeedResult, error) {
	if tenantID == uuid.Nil {
		tenantID = uuid.New()
	}
	res := SeedResult{TenantID: tenantID, ProviderID: uuid.New(), ServiceID: uuid.New()}
	if err := s.Catalog.PutProvider(ctx, catalog.Provider{
		ID: res.ProviderID, TenantID: tenantID, Name: "Demo Provider", Email: "provider@example.com", Active: true,
	}); err != nil {
		return SeedResult{}, err
	}
	if err := s.Catalog.PutService(ctx, catalog.Service{
		ID: res.ServiceID, TenantID: tenantID, Name: "Consultation", DurationMinutes: 30, PriceCents: 5000, Active: true,
	}); err != nil {
		return SeedResult{}, err
	}
	var week []schedule.Entry
	for d := schedule.Monday; d <= schedule.Friday; d++ {
		week = append(week, schedule.Entry{
			Day:     d,
			Start:   schedule.MustClock("09:00"),
			End:     schedule.MustClock("17:00"),
			Working: true,
		})
	}
	if _, err := s.Schedules.SetWeek(ctx, res.ProviderID, week); err != nil {
		return SeedResult{}, err
	}
	return res, nil
}
