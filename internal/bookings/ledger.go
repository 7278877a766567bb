package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/availability"
)

var (
	// ErrStaleBooking is returned by Ledger.Update when the stored version no
	// longer matches, i.e. another writer got there first.
	ErrStaleBooking = errors.New("bookings: booking changed concurrently")

	// ErrOverlap is returned when a write would leave two active bookings of
	// one provider overlapping.
	ErrOverlap = fmt.Errorf("%w: interval overlaps an active booking", apperr.ErrSlotUnavailable)
)

// Filter narrows List. Zero values mean "any".
type Filter struct {
	TenantID   uuid.UUID
	ProviderID uuid.UUID
	ClientID   uuid.UUID
	Statuses   []Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Ledger is the durable record of bookings.
type Ledger interface {
	availability.BookingReader

	// WithProviderLock runs fn while holding the provider's write lock. Reads
	// and writes issued with the ctx passed to fn are part of the locked scope.
	WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error

	Insert(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)
	// Update persists b if the stored version equals b.Version, then bumps it.
	Update(ctx context.Context, b *Booking) error
	List(ctx context.Context, f Filter) ([]*Booking, error)
	// ListStalePending returns pending bookings created before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Booking, error)
	// ListConfirmedStarting returns confirmed bookings starting in [from, to).
	ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]*Booking, error)
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
