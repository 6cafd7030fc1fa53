// Package timeslot holds the pure interval arithmetic used by availability matching and
// session overlap checks. Nothing here touches storage or the clock.
package timeslot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in minutes since midnight.
// EndOfDay (24:00) is accepted as an exclusive upper bound.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60
)

// NewClock builds a Clock from an hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" or "HH:MM:SS". Seconds must be zero.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
		}
		nums[i] = n
	}

	if len(nums) == 3 && nums[2] != 0 {
		return 0, fmt.Errorf("invalid time of day %q: seconds are not supported", s)
	}
	if nums[1] > 59 {
		return 0, fmt.Errorf("invalid time of day %q: minute out of range", s)
	}

	c := NewClock(nums[0], nums[1])
	if !c.Valid() {
		return 0, fmt.Errorf("invalid time of day %q: out of range", s)
	}
	return c, nil
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// Valid reports whether c lies within [00:00, 24:00].
func (c Clock) Valid() bool { return c >= Midnight && c <= EndOfDay }

// Duration converts c to an offset from midnight.
func (c Clock) Duration() time.Duration { return time.Duration(c) * time.Minute }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ClockFromDuration converts an offset from midnight, dropping seconds.
func ClockFromDuration(d time.Duration) Clock {
	return Clock(d / time.Minute)
}

// Interval is a half-open wall-clock range [From, To) within a single day.
type Interval struct {
	From Clock
	To   Clock
}

// Valid reports whether the interval is non-empty and inside one day.
func (i Interval) Valid() bool {
	return i.From.Valid() && i.To.Valid() && i.From < i.To
}

// Contains reports whether o lies fully inside i.
func (i Interval) Contains(o Interval) bool {
	return i.From <= o.From && o.To <= i.To
}

func (i Interval) String() string {
	return i.From.String() + "-" + i.To.String()
}

// DateOf truncates t to its calendar date in t's location and returns it as
// midnight UTC, the canonical representation of a date in this module.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a "YYYY-MM-DD" calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// At combines a calendar date and a time of day in loc.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

// DaySpan projects [start, start+d) onto start's calendar day using wall-clock time.
// ok is false when the span runs past the end of that day. The start is rounded
// down and the end up to whole minutes, so the projected interval never shrinks.
func DaySpan(start time.Time, d time.Duration) (date time.Time, span Interval, ok bool) {
	date = DateOf(start)
	span.From = NewClock(start.Hour(), start.Minute())

	end := start.Add(d)
	if !SameDate(start, end) {
		next := DateOf(start).AddDate(0, 0, 1)
		if !SameDate(end, next) || end.Hour() != 0 || end.Minute() != 0 || end.Second() != 0 || end.Nanosecond() != 0 {
			return date, span, false
		}
		span.To = EndOfDay
		return date, span, span.Valid()
	}

	span.To = NewClock(end.Hour(), end.Minute())
	if end.Second() != 0 || end.Nanosecond() != 0 {
		span.To++
	}
	return date, span, span.Valid()
}

// Overlaps reports whether [aStart, aStart+aDur) and [bStart, bStart+bDur) intersect:
// b starts before a ends and b ends after a starts.
func Overlaps(aStart time.Time, aDur time.Duration, bStart time.Time, bDur time.Duration) bool {
	return bStart.Before(aStart.Add(aDur)) && bStart.Add(bDur).After(aStart)
}

// Rule is an availability declaration: a one-off interval on Date, or, when
// Recurring, the same interval on every date sharing Date's weekday.
type Rule struct {
	Date      time.Time
	Span      Interval
	Recurring bool
}

// Applies reports whether the rule is in force on date, ignoring the time of day.
func (r Rule) Applies(date time.Time) bool {
	if r.Recurring {
		return r.Date.Weekday() == date.Weekday()
	}
	return SameDate(r.Date, date)
}

// Covers reports whether the rule makes want bookable on date.
func (r Rule) Covers(date time.Time, want Interval) bool {
	return r.Applies(date) && r.Span.Contains(want)
}

// Match finds a rule covering want on date. A direct (non-recurring) match is
// preferred; direct reports which kind was found. idx is -1 when nothing covers.
func Match(rules []Rule, date time.Time, want Interval) (idx int, direct bool) {
	recurring := -1
	for i, r := range rules {
		if !r.Covers(date, want) {
			continue
		}
		if !r.Recurring {
			return i, true
		}
		if recurring < 0 {
			recurring = i
		}
	}
	return recurring, false
}
