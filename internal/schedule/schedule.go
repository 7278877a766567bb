// Package schedule stores each provider's recurring weekly working pattern.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

// Weekday indexes the week starting on Monday: 0 = Monday ... 6 = Sunday.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysPerWeek is the size of a provider's schedule arena.
const DaysPerWeek = 7

// WeekdayOf converts t's weekday (Sunday-first in the time package) into a Weekday.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % DaysPerWeek)
}

// Valid reports whether d is in [0, 6].
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return time.Weekday((int(d) + 1) % DaysPerWeek).String()
}

// Clock is a time of day in minutes since midnight. 24:00 is allowed as an end.
type Clock int

const endOfDay Clock = 24 * 60

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, apperr.Validation("time of day %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, apperr.Validation("time of day %q has invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, apperr.Validation("time of day %q has invalid minute", s)
	}
	c := Clock(h*60 + m)
	if h < 0 || m < 0 || m > 59 || c > endOfDay {
		return 0, apperr.Validation("time of day %q out of range", s)
	}
	return c, nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Duration returns c as an offset from midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// On returns the wall-clock instant c on the given date in loc. 24:00 is
// midnight of the following day.
func (c Clock) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	if c >= endOfDay {
		return time.Date(year, month, day+1, 0, 0, 0, 0, loc)
	}
	return time.Date(year, month, day, int(c)/60, int(c)%60, 0, 0, loc)
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return apperr.Validation("time of day must be a string")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Entry is one day of a provider's week.
type Entry struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Day        Weekday   `json:"day_of_week"`
	Start      Clock     `json:"start_time"`
	End        Clock     `json:"end_time"`
	Working    bool      `json:"is_working"`
}

// Validate checks the per-entry invariants.
func (e Entry) Validate() error {
	if !e.Day.Valid() {
		return apperr.Validation("day_of_week %d must be between 0 and 6", int(e.Day))
	}
	if e.Start < 0 || e.End < 0 || e.Start > endOfDay || e.End > endOfDay {
		return apperr.Validation("%s: time of day out of range", e.Day)
	}
	if e.Working && e.Start >= e.End {
		return apperr.Validation("%s: start_time %s must be before end_time %s", e.Day, e.Start, e.End)
	}
	return nil
}

// Window combines the entry's hours with the calendar date of day in loc,
// yielding the half-open working interval [start, end).
func (e Entry) Window(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	return e.Start.On(y, m, d, loc), e.End.On(y, m, d, loc)
}

// Week is the arena of a provider's seven days, indexed by Weekday.
type Week [DaysPerWeek]Entry

// NewWeek validates entries and lays them out by day. Days without an entry
// are not working. Duplicate days are rejected.
func NewWeek(providerID uuid.UUID, entries []Entry) (Week, error) {
	var week Week
	var seen [DaysPerWeek]bool
	for d := range week {
		week[d] = Entry{ProviderID: providerID, Day: Weekday(d)}
	}
	if len(entries) > DaysPerWeek {
		return Week{}, apperr.Validation("a week has at most %d entries, got %d", DaysPerWeek, len(entries))
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return Week{}, err
		}
		if seen[e.Day] {
			return Week{}, apperr.Validation("duplicate entry for %s", e.Day)
		}
		seen[e.Day] = true
		e.ProviderID = providerID
		if !e.Working {
			e.Start, e.End = 0, 0
		}
		week[e.Day] = e
	}
	return week, nil
}

// Day returns the entry for d.
func (w Week) Day(d Weekday) Entry {
	if !d.Valid() {
		return Entry{Day: d}
	}
	return w[d]
}
