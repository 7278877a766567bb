package bookings

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

var now = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

func newPending(t *testing.T, start time.Time) *Booking {
	t.Helper()
	confirm, err := NewToken()
	require.NoError(t, err)
	cancel, err := NewToken()
	require.NoError(t, err)
	return &Booking{
		ID:                uuid.New(),
		TenantID:          uuid.New(),
		ProviderID:        uuid.New(),
		ClientID:          uuid.New(),
		Start:             start,
		End:               start.Add(30 * time.Minute),
		Status:            StatusPending,
		ConfirmationToken: confirm,
		CancellationToken: cancel,
		CreatedAt:         now,
	}
}

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}
	legal := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusNoShow}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusNoShow.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusPending.IsActive())
	assert.False(t, StatusCancelled.IsActive())

	st, err := ParseStatus(" No_Show ")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, st)
	_, err = ParseStatus("archived")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTokensAreDistinctAndURLSafe(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		require.NoError(t, err)
		assert.Len(t, tok, 43)
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.False(t, seen[tok])
		seen[tok] = true
	}
	assert.False(t, tokensEqual("", ""))
	assert.False(t, tokensEqual("abc", "abd"))
	assert.True(t, tokensEqual("abc", "abc"))
}

func TestConfirm(t *testing.T) {
	b := newPending(t, now.Add(24*time.Hour))

	err := b.Confirm("wrong", now)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.Equal(t, StatusPending, b.Status)

	err = b.Confirm(b.CancellationToken, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken, "tokens are scoped to one purpose")

	require.NoError(t, b.Confirm(b.ConfirmationToken, now))
	assert.Equal(t, StatusConfirmed, b.Status)
	require.NotNil(t, b.ConfirmedAt)
	assert.Equal(t, now, *b.ConfirmedAt)

	err = b.Confirm(b.ConfirmationToken, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken, "confirming twice fails")
}

func TestConfirmCancelledBookingFailsEvenWithRightToken(t *testing.T) {
	b := newPending(t, now.Add(24*time.Hour))
	require.NoError(t, b.CancelWithToken(b.CancellationToken, "changed plans", now, 2*time.Hour))

	err := b.Confirm(b.ConfirmationToken, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.Equal(t, StatusCancelled, b.Status)
}

func TestCancellationWindow(t *testing.T) {
	cases := []struct {
		name    string
		until   time.Duration
		wantErr error
	}{
		{"two hours one minute", 2*time.Hour + time.Minute, nil},
		{"exactly two hours", 2 * time.Hour, nil},
		{"one hour fifty-nine minutes", time.Hour + 59*time.Minute, apperr.ErrPolicyViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newPending(t, now.Add(tc.until))
			require.NoError(t, b.Confirm(b.ConfirmationToken, now))

			err := b.CancelWithToken(b.CancellationToken, "", now, 2*time.Hour)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, StatusConfirmed, b.Status)
				assert.Nil(t, b.CancelledAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, b.Status)
			require.NotNil(t, b.CancelledAt)
		})
	}
}

func TestPendingCancellationIgnoresWindow(t *testing.T) {
	b := newPending(t, now.Add(30*time.Minute))
	require.NoError(t, b.CancelWithToken(b.CancellationToken, "", now, 2*time.Hour))
	assert.Equal(t, StatusCancelled, b.Status)
}

func TestCancelByCaller(t *testing.T) {
	b := newPending(t, now.Add(30*time.Minute))
	require.NoError(t, b.Confirm(b.ConfirmationToken, now))

	stranger := tenancy.Caller{TenantID: b.TenantID, Role: tenancy.RoleProvider, ProviderID: uuid.New()}
	assert.ErrorIs(t, b.CancelBy(stranger, "", now), apperr.ErrForbidden)

	provider := tenancy.Caller{TenantID: b.TenantID, Role: tenancy.RoleProvider, ProviderID: b.ProviderID}
	require.NoError(t, b.CancelBy(provider, "sick", now), "no lead window on the authenticated path")
	assert.Equal(t, "sick", b.CancellationReason)

	assert.ErrorIs(t, b.CancelBy(provider, "", now), apperr.ErrPolicyViolation)
}

func TestCompleteAndNoShow(t *testing.T) {
	b := newPending(t, now.Add(time.Hour))
	assert.ErrorIs(t, b.Complete(now.Add(2*time.Hour)), apperr.ErrPolicyViolation, "pending cannot complete")

	require.NoError(t, b.Confirm(b.ConfirmationToken, now))
	assert.ErrorIs(t, b.Complete(now), apperr.ErrPolicyViolation, "not started yet")

	require.NoError(t, b.Complete(now.Add(time.Hour)))
	assert.Equal(t, StatusCompleted, b.Status)
	require.NotNil(t, b.CompletedAt)

	assert.ErrorIs(t, b.CancelWithToken(b.CancellationToken, "", now, 0), apperr.ErrInvalidToken, "completed cannot be cancelled")
	assert.ErrorIs(t, b.MarkNoShow(now.Add(2*time.Hour)), apperr.ErrPolicyViolation)

	other := newPending(t, now.Add(time.Hour))
	require.NoError(t, other.Confirm(other.ConfirmationToken, now))
	require.NoError(t, other.MarkNoShow(now.Add(90*time.Minute)))
	assert.Equal(t, StatusNoShow, other.Status)
}

func TestRescheduleKeepsDuration(t *testing.T) {
	b := newPending(t, now.Add(24*time.Hour))
	b.End = b.Start.Add(45 * time.Minute)

	target := now.Add(48 * time.Hour)
	require.NoError(t, b.Reschedule(target, now))
	assert.Equal(t, target, b.Start)
	assert.Equal(t, 45*time.Minute, b.Duration())

	assert.ErrorIs(t, b.Reschedule(now.Add(-time.Hour), now), apperr.ErrValidation)

	require.NoError(t, b.CancelWithToken(b.CancellationToken, "", now, 0))
	assert.ErrorIs(t, b.Reschedule(now.Add(72*time.Hour), now), apperr.ErrPolicyViolation)
}

func TestSnapshotCarriesTokens(t *testing.T) {
	b := newPending(t, now.Add(time.Hour))
	snap := b.Snapshot()
	assert.Equal(t, b.ID, snap.ID)
	assert.Equal(t, "pending", snap.Status)
	assert.Equal(t, b.ConfirmationToken, snap.ConfirmationToken)
	assert.Equal(t, b.CancellationToken, snap.CancellationToken)
}
