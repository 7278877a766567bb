package bookings

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/availability"
)

// MemoryLedger keeps bookings in memory. Each provider has its own mutex for
// WithProviderLock, so different providers never wait on each other.
type MemoryLedger struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*Booking

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		bookings: make(map[uuid.UUID]*Booking),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *MemoryLedger) providerLock(providerID uuid.UUID) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[providerID] = m
	}
	return m
}

func (l *MemoryLedger) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	m := l.providerLock(providerID)
	m.Lock()
	defer m.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (l *MemoryLedger) Insert(ctx context.Context, b *Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.bookings[b.ID]; exists {
		return apperr.Validation("booking %s already exists", b.ID)
	}
	if b.Status.IsActive() && l.overlapsLocked(b) {
		return ErrOverlap
	}
	b.Version = 1
	l.bookings[b.ID] = b.Clone()
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking")
	}
	return b.Clone(), nil
}

func (l *MemoryLedger) Update(ctx context.Context, b *Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.bookings[b.ID]
	if !ok {
		return apperr.NotFound("booking")
	}
	if stored.Version != b.Version {
		return ErrStaleBooking
	}
	if b.Status.IsActive() && l.overlapsLocked(b) {
		return ErrOverlap
	}
	b.Version++
	l.bookings[b.ID] = b.Clone()
	return nil
}

// overlapsLocked reports whether another active booking of b's provider
// intersects b. Caller holds l.mu.
func (l *MemoryLedger) overlapsLocked(b *Booking) bool {
	for _, other := range l.bookings {
		if other.ID == b.ID || other.ProviderID != b.ProviderID || !other.Status.IsActive() {
			continue
		}
		if availability.Overlaps(b.Start, b.End, other.Start, other.End) {
			return true
		}
	}
	return false
}

func (l *MemoryLedger) ActiveIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Interval, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []availability.Interval
	for _, b := range l.bookings {
		if b.ProviderID != providerID || !b.Status.IsActive() {
			continue
		}
		if availability.Overlaps(b.Start, b.End, from, to) {
			out = append(out, availability.Interval{Start: b.Start, End: b.End, BookingID: b.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (l *MemoryLedger) List(ctx context.Context, f Filter) ([]*Booking, error) {
	f = f.normalized()
	matches := l.collect(func(b *Booking) bool {
		if f.TenantID != uuid.Nil && b.TenantID != f.TenantID {
			return false
		}
		if f.ProviderID != uuid.Nil && b.ProviderID != f.ProviderID {
			return false
		}
		if f.ClientID != uuid.Nil && b.ClientID != f.ClientID {
			return false
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			return false
		}
		if !f.From.IsZero() && b.Start.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && !b.Start.Before(f.To) {
			return false
		}
		return true
	})
	if f.Offset >= len(matches) {
		return []*Booking{}, nil
	}
	matches = matches[f.Offset:]
	if len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	return matches, nil
}

func (l *MemoryLedger) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Booking, error) {
	out := l.collect(func(b *Booking) bool {
		return b.Status == StatusPending && b.CreatedAt.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]*Booking, error) {
	return l.collect(func(b *Booking) bool {
		return b.Status == StatusConfirmed && !b.Start.Before(from) && b.Start.Before(to)
	}), nil
}

// collect returns clones of matching bookings ordered by start.
func (l *MemoryLedger) collect(match func(*Booking) bool) []*Booking {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Booking
	for _, b := range l.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
