// Package availability computes free appointment slots and checks whether a
// single requested interval is free. Both answers come from the same day
// plan and the same predicate, so a slot the calculator lists is always
// accepted by the checker and the other way around.
package availability

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/blocks"
	"github.com/wolfman30/booking-platform/internal/schedule"
)

// DefaultStep is the slot granularity used when Options.Step is zero.
const DefaultStep = 30 * time.Minute

// Interval is a busy half-open [Start, End) range. BookingID is set when the
// interval belongs to a booking.
type Interval struct {
	Start     time.Time
	End       time.Time
	BookingID uuid.UUID
}

// Overlaps is the half-open intersection test shared by every conflict check.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ScheduleReader resolves one day of a provider's week.
type ScheduleReader interface {
	GetDay(ctx context.Context, providerID uuid.UUID, day schedule.Weekday) (schedule.Entry, error)
}

// BlockReader lists blocks intersecting a range, recurring ones expanded.
type BlockReader interface {
	ListOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]blocks.Block, error)
}

// BookingReader lists PENDING and CONFIRMED bookings intersecting a range.
type BookingReader interface {
	ActiveIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Interval, error)
}

// Options tunes the calculator.
type Options struct {
	// Step is the distance between candidate start times.
	Step time.Duration
	// Location turns calendar dates and schedule hours into instants.
	Location *time.Location
}

// Calculator answers availability questions for one provider at a time.
// It keeps no state between calls.
type Calculator struct {
	schedules ScheduleReader
	blocks    BlockReader
	bookings  BookingReader
	step      time.Duration
	loc       *time.Location
}

// NewCalculator wires the three sources together.
func NewCalculator(schedules ScheduleReader, blockReader BlockReader, bookings BookingReader, opts Options) *Calculator {
	if schedules == nil || blockReader == nil || bookings == nil {
		panic("availability: schedule, block and booking readers required")
	}
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Calculator{
		schedules: schedules,
		blocks:    blockReader,
		bookings:  bookings,
		step:      opts.Step,
		loc:       opts.Location,
	}
}

// Location returns the zone calendar dates are interpreted in.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Step returns the slot granularity.
func (c *Calculator) Step() time.Duration {
	return c.step
}

// CheckOption adjusts a single IsAvailable call.
type CheckOption func(*checkOptions)

type checkOptions struct {
	exclude uuid.UUID
}

// ExcludeBooking ignores the given booking's own interval, used when moving
// an existing booking.
func ExcludeBooking(id uuid.UUID) CheckOption {
	return func(o *checkOptions) { o.exclude = id }
}

// Slots returns the free start times on date for an appointment of the given
// duration. The day is loaded once per call; the returned sequence is finite
// and may be ranged over any number of times with the same result.
func (c *Calculator) Slots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) (iter.Seq[time.Time], error) {
	if duration <= 0 {
		return nil, apperr.Validation("duration must be positive")
	}
	plan, err := c.loadDay(ctx, providerID, date, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return plan.slots(duration), nil
}

// AvailableSlots collects Slots into a slice.
func (c *Calculator) AvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) ([]time.Time, error) {
	seq, err := c.Slots(ctx, providerID, date, duration)
	if err != nil {
		return nil, err
	}
	out := slices.Collect(seq)
	if out == nil {
		out = []time.Time{}
	}
	return out, nil
}

// IsAvailable reports whether [start, start+duration) is bookable: it lies
// on the slot grid inside the working window and intersects no block and no
// active booking.
func (c *Calculator) IsAvailable(ctx context.Context, providerID uuid.UUID, start time.Time, duration time.Duration, opts ...CheckOption) (bool, error) {
	if duration <= 0 {
		return false, apperr.Validation("duration must be positive")
	}
	var o checkOptions
	for _, opt := range opts {
		opt(&o)
	}
	plan, err := c.loadDay(ctx, providerID, start, o.exclude)
	if err != nil {
		return false, err
	}
	return plan.aligned(start) && plan.fits(start, start.Add(duration)), nil
}

// dayPlan is everything known about one provider-day.
type dayPlan struct {
	working bool
	start   time.Time
	end     time.Time
	step    time.Duration
	busy    []Interval
}

func (c *Calculator) loadDay(ctx context.Context, providerID uuid.UUID, date time.Time, exclude uuid.UUID) (dayPlan, error) {
	local := date.In(c.loc)
	entry, err := c.schedules.GetDay(ctx, providerID, schedule.WeekdayOf(local))
	if err != nil {
		return dayPlan{}, fmt.Errorf("availability: load schedule: %w", err)
	}
	if !entry.Working {
		return dayPlan{}, nil
	}
	dayStart, dayEnd := entry.Window(local, c.loc)
	plan := dayPlan{working: true, start: dayStart, end: dayEnd, step: c.step}

	blockList, err := c.blocks.ListOverlapping(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return dayPlan{}, fmt.Errorf("availability: load blocks: %w", err)
	}
	for _, b := range blockList {
		plan.busy = append(plan.busy, Interval{Start: b.Start, End: b.End})
	}

	booked, err := c.bookings.ActiveIntervals(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return dayPlan{}, fmt.Errorf("availability: load bookings: %w", err)
	}
	for _, iv := range booked {
		if exclude != uuid.Nil && iv.BookingID == exclude {
			continue
		}
		plan.busy = append(plan.busy, iv)
	}
	return plan, nil
}

// fits is the single acceptance predicate for slots and checks.
func (p dayPlan) fits(start, end time.Time) bool {
	if !p.working || start.Before(p.start) || end.After(p.end) {
		return false
	}
	for _, iv := range p.busy {
		if Overlaps(start, end, iv.Start, iv.End) {
			return false
		}
	}
	return true
}

func (p dayPlan) aligned(start time.Time) bool {
	if !p.working || start.Before(p.start) {
		return false
	}
	return start.Sub(p.start)%p.step == 0
}

func (p dayPlan) slots(duration time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !p.working {
			return
		}
		for start := p.start; !start.Add(duration).After(p.end); start = start.Add(p.step) {
			if p.fits(start, start.Add(duration)) && !yield(start) {
				return
			}
		}
	}
}
