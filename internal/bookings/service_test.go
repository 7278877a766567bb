package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/availability"
	"github.com/wolfman30/booking-platform/internal/blocks"
	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/internal/clients"
	"github.com/wolfman30/booking-platform/internal/events"
	"github.com/wolfman30/booking-platform/internal/observability/metrics"
	"github.com/wolfman30/booking-platform/internal/schedule"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

// monday 2025-03-03; the clock in these tests reads 08:00 that day.
var day = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type serviceFixture struct {
	svc       *Service
	ledger    *MemoryLedger
	blocks    *blocks.MemoryStore
	catalog   *catalog.MemoryCatalog
	publisher *recordingPublisher
	clock     *time.Time
	tenantID  uuid.UUID
	provider  catalog.Provider
	service   catalog.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	f := &serviceFixture{
		ledger:    NewMemoryLedger(),
		blocks:    blocks.NewMemoryStore(time.UTC),
		publisher: &recordingPublisher{},
		tenantID:  uuid.New(),
	}
	clock := at(8, 0)
	f.clock = &clock

	cat := catalog.NewMemoryCatalog()
	f.catalog = cat
	f.provider = catalog.Provider{ID: uuid.New(), TenantID: f.tenantID, Name: "Ana", Email: "ana@salon.test", Active: true}
	f.service = catalog.Service{ID: uuid.New(), TenantID: f.tenantID, Name: "Cut", DurationMinutes: 30, PriceCents: 4500, Active: true}
	require.NoError(t, cat.PutProvider(ctx, f.provider))
	require.NoError(t, cat.PutService(ctx, f.service))

	schedules := schedule.NewMemoryStore()
	var week []schedule.Entry
	for d := schedule.Monday; d <= schedule.Sunday; d++ {
		week = append(week, schedule.Entry{Day: d, Start: schedule.MustClock("09:00"), End: schedule.MustClock("18:00"), Working: true})
	}
	_, err := schedules.SetWeek(ctx, f.provider.ID, week)
	require.NoError(t, err)

	calc := availability.NewCalculator(schedules, f.blocks, f.ledger, availability.Options{})
	f.svc = NewService(Deps{
		Ledger:       f.ledger,
		Availability: calc,
		Catalog:      cat,
		Clients:      clients.NewMemoryRegistry(),
		Publisher:    f.publisher,
		Metrics:      metrics.NewBookingMetrics(prometheus.NewRegistry()),
	}, Config{Now: func() time.Time { return *f.clock }}, nil)
	return f
}

func (f *serviceFixture) params(start time.Time) CreateParams {
	return CreateParams{
		TenantID:   f.tenantID,
		ProviderID: f.provider.ID,
		ServiceID:  f.service.ID,
		Client:     clients.Contact{Email: "client@example.com", Phone: "+15550001111", Name: "Client"},
		Start:      start,
	}
}

func (f *serviceFixture) admin() tenancy.Caller {
	return tenancy.Caller{UserID: uuid.New(), TenantID: f.tenantID, Role: tenancy.RoleAdmin}
}

func TestCreateBooking(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	b, err := f.svc.CreateBooking(ctx, f.params(at(10, 0)))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, at(10, 30), b.End)
	assert.Equal(t, int64(4500), b.PriceCents)
	assert.NotEmpty(t, b.ConfirmationToken)
	assert.NotEmpty(t, b.CancellationToken)
	assert.NotEqual(t, b.ConfirmationToken, b.CancellationToken)
	assert.Equal(t, []string{events.TypeBookingCreated}, f.publisher.types())

	_, err = f.svc.CreateBooking(ctx, f.params(at(10, 0)))
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)

	ok, err := f.svc.IsAvailable(ctx, f.provider.ID, at(10, 0), f.service.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	slots, err := f.svc.GetAvailableSlots(ctx, f.provider.ID, day, f.service.ID)
	require.NoError(t, err)
	assert.NotContains(t, slots, at(10, 0))
	assert.Contains(t, slots, at(10, 30))
	assert.Contains(t, slots, at(9, 30))
}

func TestCreateBookingValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	past := f.params(at(7, 0))
	_, err := f.svc.CreateBooking(ctx, past)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	noEmail := f.params(at(10, 0))
	noEmail.Client.Email = ""
	_, err = f.svc.CreateBooking(ctx, noEmail)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	unknownService := f.params(at(10, 0))
	unknownService.ServiceID = uuid.New()
	_, err = f.svc.CreateBooking(ctx, unknownService)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	otherTenant := f.params(at(10, 0))
	otherTenant.TenantID = uuid.New()
	_, err = f.svc.CreateBooking(ctx, otherTenant)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	offGrid := f.params(at(10, 15))
	_, err = f.svc.CreateBooking(ctx, offGrid)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)

	_, err = f.svc.CreateBooking(ctx, f.params(at(17, 45)))
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)

	assert.Empty(t, f.publisher.types())
}

func TestCreateBookingRespectsBlocks(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.blocks.Add(context.Background(), blocks.Block{ProviderID: f.provider.ID, Start: at(12, 0), End: at(13, 0), Reason: "lunch"})
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(context.Background(), f.params(at(12, 30)))
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
	_, err = f.svc.CreateBooking(context.Background(), f.params(at(13, 0)))
	assert.NoError(t, err)
}

func TestConcurrentCreatesNeverDoubleBook(t *testing.T) {
	f := newServiceFixture(t)
	const attempts = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateBooking(context.Background(), f.params(at(10, 0)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, apperr.ErrSlotUnavailable) {
				t.Errorf("attempt %d: unexpected error %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	active, err := f.ledger.ActiveIntervals(context.Background(), f.provider.ID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentOverlappingCreatesNeverDoubleBook(t *testing.T) {
	f := newServiceFixture(t)
	colour := catalog.Service{ID: uuid.New(), TenantID: f.tenantID, Name: "Colour", DurationMinutes: 60, Active: true}
	require.NoError(t, f.catalog.PutService(context.Background(), colour))
	const attempts = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	var won []time.Time
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := f.params(at(10, 0))
			if i%2 == 1 {
				p.Start = at(10, 30)
			}
			p.ServiceID = colour.ID
			<-start
			b, err := f.svc.CreateBooking(context.Background(), p)
			if err == nil {
				mu.Lock()
				won = append(won, b.Start)
				mu.Unlock()
				return
			}
			if !errors.Is(err, apperr.ErrSlotUnavailable) {
				t.Errorf("attempt %d: unexpected error %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	require.Len(t, won, 1, "10:00 and 10:30 overlap for a 60 minute service")

	active, err := f.ledger.ActiveIntervals(context.Background(), f.provider.ID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, won[0], active[0].Start)
	assert.Equal(t, won[0].Add(time.Hour), active[0].End)
}

func TestRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.params(at(15, 0)))
	require.NoError(t, err)

	_, err = f.svc.ConfirmBooking(ctx, b.ID, "nope")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	confirmed, err := f.svc.ConfirmBooking(ctx, b.ID, b.ConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)

	_, err = f.svc.CancelBooking(ctx, b.ID, CancelParams{Token: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	cancelled, err := f.svc.CancelBooking(ctx, b.ID, CancelParams{Token: b.CancellationToken, Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "plans changed", cancelled.CancellationReason)

	_, err = f.svc.ConfirmBooking(ctx, b.ID, b.ConfirmationToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	assert.Equal(t, []string{events.TypeBookingCreated, events.TypeBookingConfirmed, events.TypeBookingCancelled}, f.publisher.types())

	// the freed slot can be booked again
	_, err = f.svc.CreateBooking(ctx, f.params(at(15, 0)))
	assert.NoError(t, err)
}

func TestTokenCancellationWindowThroughService(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.params(at(11, 0)))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, b.ID, b.ConfirmationToken)
	require.NoError(t, err)

	*f.clock = at(9, 1) // 1h59m before start
	_, err = f.svc.CancelBooking(ctx, b.ID, CancelParams{Token: b.CancellationToken})
	assert.ErrorIs(t, err, apperr.ErrPolicyViolation)

	// staff can still cancel inside the window
	caller := f.admin()
	cancelled, err := f.svc.CancelBooking(ctx, b.ID, CancelParams{Caller: &caller, Reason: "provider ill"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelWithoutTokenOrCaller(t *testing.T) {
	f := newServiceFixture(t)
	b, err := f.svc.CreateBooking(context.Background(), f.params(at(11, 0)))
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(context.Background(), b.ID, CancelParams{})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	outsider := tenancy.Caller{TenantID: uuid.New(), Role: tenancy.RoleAdmin}
	_, err = f.svc.CancelBooking(context.Background(), b.ID, CancelParams{Caller: &outsider})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelByUnrelatedTenantMemberIsNotFound(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.params(at(11, 0)))
	require.NoError(t, err)

	strangers := map[string]tenancy.Caller{
		"other provider": {TenantID: f.tenantID, Role: tenancy.RoleProvider, ProviderID: uuid.New()},
		"other client":   {TenantID: f.tenantID, Role: tenancy.RoleClient, ClientID: uuid.New()},
	}
	for name, caller := range strangers {
		_, err := f.svc.CancelBooking(ctx, b.ID, CancelParams{Caller: &caller})
		assert.ErrorIs(t, err, apperr.ErrNotFound, name)
		assert.NotErrorIs(t, err, apperr.ErrForbidden, name)
	}

	got, err := f.ledger.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	owner := tenancy.Caller{TenantID: f.tenantID, Role: tenancy.RoleClient, ClientID: b.ClientID}
	cancelled, err := f.svc.CancelBooking(ctx, b.ID, CancelParams{Caller: &owner})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestRescheduleBooking(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a, err := f.svc.CreateBooking(ctx, f.params(at(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, f.params(at(11, 0)))
	require.NoError(t, err)
	caller := f.admin()

	// overlapping its own old interval is fine
	moved, err := f.svc.RescheduleBooking(ctx, a.ID, at(10, 0), caller)
	require.NoError(t, err)
	assert.Equal(t, at(10, 30), moved.End)

	moved, err = f.svc.RescheduleBooking(ctx, a.ID, at(10, 30), caller)
	require.NoError(t, err)
	assert.Equal(t, at(11, 0), moved.End)

	_, err = f.svc.RescheduleBooking(ctx, a.ID, at(11, 0), caller)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)

	stranger := tenancy.Caller{TenantID: f.tenantID, Role: tenancy.RoleProvider, ProviderID: uuid.New()}
	_, err = f.svc.RescheduleBooking(ctx, a.ID, at(14, 0), stranger)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	last := f.publisher.events[len(f.publisher.events)-1]
	assert.Equal(t, events.TypeBookingRescheduled, last.Type)
	require.NotNil(t, last.PreviousStart)
	assert.Equal(t, at(10, 0), *last.PreviousStart)
}

func TestCompleteAndNoShowThroughService(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.params(at(9, 0)))
	require.NoError(t, err)
	caller := tenancy.Caller{TenantID: f.tenantID, Role: tenancy.RoleProvider, ProviderID: f.provider.ID}

	_, err = f.svc.CompleteBooking(ctx, b.ID, caller)
	assert.ErrorIs(t, err, apperr.ErrPolicyViolation, "pending bookings cannot complete")

	_, err = f.svc.ConfirmBooking(ctx, b.ID, b.ConfirmationToken)
	require.NoError(t, err)
	_, err = f.svc.CompleteBooking(ctx, b.ID, caller)
	assert.ErrorIs(t, err, apperr.ErrPolicyViolation, "not started yet")

	*f.clock = at(9, 30)
	done, err := f.svc.CompleteBooking(ctx, b.ID, caller)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.CancelBooking(ctx, b.ID, CancelParams{Caller: &caller})
	assert.ErrorIs(t, err, apperr.ErrPolicyViolation, "completed bookings cannot be cancelled")

	client := tenancy.Caller{TenantID: f.tenantID, Role: tenancy.RoleClient, ClientID: b.ClientID}
	_, err = f.svc.MarkNoShow(ctx, b.ID, client)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestListAndGetAreScopedToCaller(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.params(at(10, 0)))
	require.NoError(t, err)

	list, err := f.svc.ListBookings(ctx, Filter{}, f.admin())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	otherProvider := tenancy.Caller{TenantID: f.tenantID, Role: tenancy.RoleProvider, ProviderID: uuid.New()}
	list, err = f.svc.ListBookings(ctx, Filter{ProviderID: f.provider.ID}, otherProvider)
	require.NoError(t, err)
	assert.Empty(t, list, "providers only see their own calendar")

	client := tenancy.Caller{TenantID: f.tenantID, Role: tenancy.RoleClient, ClientID: b.ClientID}
	got, err := f.svc.GetBooking(ctx, b.ID, client)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = f.svc.GetBooking(ctx, b.ID, tenancy.Caller{TenantID: uuid.New(), Role: tenancy.RoleOwner})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.ListBookings(ctx, Filter{}, tenancy.Caller{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUpdateNotes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.params(at(10, 0)))
	require.NoError(t, err)

	updated, err := f.svc.UpdateNotes(ctx, b.ID, "bring reference photo", f.admin())
	require.NoError(t, err)
	assert.Equal(t, "bring reference photo", updated.Notes)
}

func TestExpireStalePending(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	stale, err := f.svc.CreateBooking(ctx, f.params(at(16, 0)))
	require.NoError(t, err)

	*f.clock = at(8, 0).Add(time.Hour)
	fresh, err := f.svc.CreateBooking(ctx, f.params(at(17, 0)))
	require.NoError(t, err)

	n, err := f.svc.ExpireStalePending(ctx, at(8, 30), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.ledger.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, ExpiredReason, got.CancellationReason)

	got, err = f.ledger.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestPublisherErrorsDoNotFailOperations(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.err = errors.New("queue full")
	b, err := f.svc.CreateBooking(context.Background(), f.params(at(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(context.Background(), b.ID, b.ConfirmationToken)
	require.NoError(t, err)
	assert.Len(t, f.publisher.types(), 2)
}
