// Package blocks stores intervals during which a provider cannot be booked
// even though the weekly schedule says they work.
package blocks

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

// FrequencyWeekly is the only supported recurrence frequency.
const FrequencyWeekly = "weekly"

// Recurrence repeats a block every Interval weeks. Occurrences starting after
// Until are dropped; a nil Until repeats forever.
type Recurrence struct {
	Frequency string     `json:"frequency"`
	Interval  int        `json:"interval"`
	Until     *time.Time `json:"until,omitempty"`
}

// Block is a half-open [Start, End) exclusion on a provider's calendar.
type Block struct {
	ID          uuid.UUID   `json:"id"`
	ProviderID  uuid.UUID   `json:"provider_id"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Reason      string      `json:"reason,omitempty"`
	Description string      `json:"description,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Validate checks Start < End and the recurrence rule. It fills in a
// missing recurrence interval with 1 on a copy of the rule, so the caller's
// Recurrence is never modified.
func (b *Block) Validate() error {
	if b.ProviderID == uuid.Nil {
		return apperr.Validation("provider id is required")
	}
	if b.Start.IsZero() || b.End.IsZero() {
		return apperr.Validation("block start and end are required")
	}
	if !b.Start.Before(b.End) {
		return apperr.Validation("block start %s must be before end %s", b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
	}
	if b.Recurrence == nil {
		return nil
	}
	rc := *b.Recurrence
	r := &rc
	b.Recurrence = r
	r.Frequency = strings.ToLower(strings.TrimSpace(r.Frequency))
	if r.Frequency != FrequencyWeekly {
		return apperr.Validation("unsupported recurrence frequency %q", r.Frequency)
	}
	if r.Interval == 0 {
		r.Interval = 1
	}
	if r.Interval < 1 {
		return apperr.Validation("recurrence interval must be at least 1")
	}
	if b.End.Sub(b.Start) > r.period() {
		return apperr.Validation("recurring block is longer than its repeat period")
	}
	if r.Until != nil && r.Until.Before(b.Start) {
		return apperr.Validation("recurrence until must not be before the block start")
	}
	return nil
}

func (r *Recurrence) period() time.Duration {
	return time.Duration(r.Interval) * 7 * 24 * time.Hour
}

// Overlaps reports whether [b.Start, b.End) intersects [from, to).
func (b Block) Overlaps(from, to time.Time) bool {
	return b.Start.Before(to) && from.Before(b.End)
}

// Occurrences returns the concrete instances of b that intersect [from, to).
// A non-recurring block yields itself at most once. Weekly occurrences keep
// the wall-clock time of the first instance as read in loc, so a 12:00 lunch
// stays at 12:00 across DST changes. A nil loc means UTC.
func (b Block) Occurrences(from, to time.Time, loc *time.Location) []Block {
	if b.Recurrence == nil {
		if b.Overlaps(from, to) {
			return []Block{b}
		}
		return nil
	}
	r := b.Recurrence
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	first, last := b.Start.In(loc), b.End.In(loc)

	k := 0
	if gap := from.Sub(b.End); gap > 0 {
		// jump near the window, one period early to absorb DST drift
		k = int(gap/r.period()) - 1
		if k < 0 {
			k = 0
		}
	}
	var out []Block
	for ; ; k++ {
		start := first.AddDate(0, 0, 7*interval*k)
		if !start.Before(to) {
			break
		}
		if r.Until != nil && start.After(*r.Until) {
			break
		}
		occ := b
		occ.Start = start
		occ.End = last.AddDate(0, 0, 7*interval*k)
		if occ.Overlaps(from, to) {
			out = append(out, occ)
		}
	}
	return out
}

// Store persists blocks.
type Store interface {
	Add(ctx context.Context, b Block) (Block, error)
	ListOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Block, error)
	Delete(ctx context.Context, providerID, blockID uuid.UUID) error
}

func expand(stored []Block, from, to time.Time, loc *time.Location) []Block {
	var out []Block
	for _, b := range stored {
		out = append(out, b.Occurrences(from, to, loc)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
