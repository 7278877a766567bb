package schedule

import (
	"context"

	"github.com/google/uuid"
)

// Store persists weekly schedules. SetWeek replaces the whole week in one
// step so readers never observe a mix of old and new days.
type Store interface {
	SetWeek(ctx context.Context, providerID uuid.UUID, entries []Entry) (Week, error)
	GetWeek(ctx context.Context, providerID uuid.UUID) (Week, error)
	GetDay(ctx context.Context, providerID uuid.UUID, day Weekday) (Entry, error)
}
