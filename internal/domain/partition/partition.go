// Package partition derives the canonical day and week partition identifiers
// a score event belongs to.
//
// Identifiers are calendar dates formatted as YYYYMMDD. Weeks start on Sunday
// and are named after that Sunday. All arithmetic is calendar based (AddDate),
// so daylight-saving transitions never move an event into the wrong day or week.
package partition

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the canonical date layout of a partition identifier.
const Layout = "20060102"

// WeekStart is the first day of a partition week.
const WeekStart = time.Sunday

// ErrInvalidID reports an identifier that is not a YYYYMMDD date.
var ErrInvalidID = errors.New("invalid partition id")

// ID names one day or week partition.
type ID string

// Kind distinguishes day partitions from week partitions.
type Kind int

// Partition kinds.
const (
	Day Kind = iota
	Week
)

func (k Kind) String() string {
	if k == Week {
		return "week"
	}
	return "day"
}

// Time parses the identifier back to midnight of its date in loc.
func (id ID) Time(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, string(id), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %w", ErrInvalidID, string(id), err)
	}
	return t, nil
}

func (id ID) String() string { return string(id) }

// Calendar computes partition identifiers in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a Calendar for loc; nil means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the calendar's time zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// DayID returns the calendar day of ts.
func (c Calendar) DayID(ts time.Time) ID {
	return ID(ts.In(c.Location()).Format(Layout))
}

// WeekID returns the Sunday that starts the week containing ts.
func (c Calendar) WeekID(ts time.Time) ID {
	local := ts.In(c.Location())
	back := (int(local.Weekday()) - int(WeekStart) + 7) % 7
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.Location()).AddDate(0, 0, -back)
	return ID(start.Format(Layout))
}

// PreviousWeekID returns the week partition exactly seven days before week.
func (c Calendar) PreviousWeekID(week ID) (ID, error) {
	t, err := week.Time(c.Location())
	if err != nil {
		return "", err
	}
	return ID(t.AddDate(0, 0, -7).Format(Layout)), nil
}

// Resolve returns the day, week and previous week partitions of ts.
func (c Calendar) Resolve(ts time.Time) (day, week, prevWeek ID) {
	day = c.DayID(ts)
	week = c.WeekID(ts)
	// week was produced by Format(Layout), so it always parses.
	prevWeek, _ = c.PreviousWeekID(week)
	return day, week, prevWeek
}
