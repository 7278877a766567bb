package bookings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

func TestMemoryLedgerInsertGetUpdate(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	b := newPending(t, now.Add(time.Hour))
	require.NoError(t, l.Insert(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := l.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Start, got.Start)

	// mutations on the returned copy do not leak into the ledger
	got.Notes = "scribble"
	again, err := l.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Notes)

	first, _ := l.Get(ctx, b.ID)
	second, _ := l.Get(ctx, b.ID)
	require.NoError(t, first.Confirm(first.ConfirmationToken, now))
	require.NoError(t, l.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	require.NoError(t, second.CancelWithToken(second.CancellationToken, "", now, 0))
	assert.ErrorIs(t, l.Update(ctx, second), ErrStaleBooking)

	_, err = l.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryLedgerRejectsOverlaps(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	a := newPending(t, now.Add(time.Hour))
	require.NoError(t, l.Insert(ctx, a))

	b := newPending(t, now.Add(time.Hour+15*time.Minute))
	b.ProviderID = a.ProviderID
	err := l.Insert(ctx, b)
	assert.ErrorIs(t, err, ErrOverlap)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)

	// back-to-back is fine
	c := newPending(t, a.End)
	c.ProviderID = a.ProviderID
	require.NoError(t, l.Insert(ctx, c))

	// once a is cancelled its interval is free again
	stored, err := l.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NoError(t, stored.CancelWithToken(stored.CancellationToken, "", now, 0))
	require.NoError(t, l.Update(ctx, stored))
	require.NoError(t, l.Insert(ctx, b))
}

func TestMemoryLedgerQueries(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	providerID := uuid.New()
	tenantID := uuid.New()

	mk := func(offset time.Duration, status Status, created time.Time) *Booking {
		b := newPending(t, now.Add(offset))
		b.ProviderID = providerID
		b.TenantID = tenantID
		b.Status = status
		b.CreatedAt = created
		require.NoError(t, l.Insert(ctx, b))
		return b
	}
	stale := mk(time.Hour, StatusPending, now.Add(-25*time.Hour))
	fresh := mk(2*time.Hour, StatusPending, now)
	confirmed := mk(24*time.Hour, StatusConfirmed, now)
	mk(3*time.Hour, StatusCancelled, now)

	intervals, err := l.ActiveIntervals(ctx, providerID, now, now.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	assert.Equal(t, stale.ID, intervals[0].BookingID)

	pending, err := l.ListStalePending(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)

	upcoming, err := l.ListConfirmedStarting(ctx, now.Add(23*time.Hour), now.Add(25*time.Hour))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, confirmed.ID, upcoming[0].ID)

	listed, err := l.List(ctx, Filter{TenantID: tenantID, Statuses: []Status{StatusPending}})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, stale.ID, listed[0].ID)
	assert.Equal(t, fresh.ID, listed[1].ID)

	page, err := l.List(ctx, Filter{TenantID: tenantID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, fresh.ID, page[0].ID)

	none, err := l.List(ctx, Filter{TenantID: uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryLedgerProviderLocksAreIndependent(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	holding := make(chan struct{})
	release := make(chan struct{})
	providerA, providerB := uuid.New(), uuid.New()

	go func() {
		_ = l.WithProviderLock(ctx, providerA, func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	done := make(chan struct{})
	go func() {
		_ = l.WithProviderLock(ctx, providerB, func(ctx context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on provider B waited for provider A")
	}
	close(release)
}

func TestMemoryLedgerProviderLockSerializes(t *testing.T) {
	l := NewMemoryLedger()
	providerID := uuid.New()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestPostgresLedgerWithProviderLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(providerLockKey(providerID)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT id, start_at, end_at").
		WithArgs(providerID, now, now.Add(time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_at", "end_at"}))
	mock.ExpectCommit()

	l := NewPostgresLedger(mock)
	err = l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		intervals, err := l.ActiveIntervals(ctx, providerID, now, now.Add(time.Hour))
		assert.Empty(t, intervals)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerInsertMapsExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := newPending(t, now.Add(time.Hour))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})

	err = NewPostgresLedger(mock).Insert(context.Background(), b)
	assert.ErrorIs(t, err, ErrOverlap)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerUpdateCompareAndSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := newPending(t, now.Add(time.Hour))
	b.Version = 3
	l := NewPostgresLedger(mock)

	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, l.Update(context.Background(), b))
	assert.Equal(t, int64(4), b.Version)

	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT version FROM bookings").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))
	assert.ErrorIs(t, l.Update(context.Background(), b), ErrStaleBooking)

	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT version FROM bookings").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows([]string{"version"}))
	assert.ErrorIs(t, l.Update(context.Background(), b), apperr.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := newPending(t, now.Add(time.Hour))
	confirmedAt := now
	mock.ExpectQuery("SELECT id, tenant_id, provider_id").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "provider_id", "service_id", "client_id", "start_at", "end_at", "status",
			"price_cents", "notes", "confirmation_token", "cancellation_token", "confirmed_at", "completed_at",
			"cancelled_at", "cancellation_reason", "version", "created_at", "updated_at",
		}).AddRow(
			b.ID, b.TenantID, b.ProviderID, b.ServiceID, b.ClientID, b.Start, b.End, "confirmed",
			int64(4500), "", b.ConfirmationToken, b.CancellationToken, &confirmedAt, (*time.Time)(nil),
			(*time.Time)(nil), "", int64(2), now, now,
		))
	mock.ExpectQuery("SELECT id, tenant_id, provider_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	l := NewPostgresLedger(mock)
	got, err := l.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, int64(4500), got.PriceCents)
	require.NotNil(t, got.ConfirmedAt)
	assert.Nil(t, got.CancelledAt)

	_, err = l.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bookings: get")
	require.NoError(t, mock.ExpectationsWereMet())
}
