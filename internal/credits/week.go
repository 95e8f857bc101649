package credits

import (
	"fmt"
	"time"
)

// Week is a credit week: Saturday 00:00:00 to Friday 23:59:59.999 in the
// store's local time.
type Week struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the week containing t, evaluated in t's location.
func WeekOf(t time.Time) Week {
	start := WeekStart(t)
	return Week{Start: start, End: WeekEnd(start)}
}

// WeekStart returns the most recent Saturday at midnight, t's own day when t
// is a Saturday.
func WeekStart(t time.Time) time.Time {
	back := (int(t.Weekday()) + 1) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, t.Location())
}

// WeekEnd returns the Friday closing the week that begins at start.
func WeekEnd(start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d+6, 23, 59, 59, int(999*time.Millisecond), start.Location())
}

// DueDate is the date payment is expected, the last day of the week.
func (w Week) DueDate() time.Time {
	y, m, d := w.End.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, w.End.Location())
}

// Range formats the week as "DD/MM - DD/MM".
func (w Week) Range() string {
	return FormatWeekRange(w.Start)
}

// Contains reports whether t falls inside the week.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// FormatWeekRange renders the week beginning at start as "DD/MM - DD/MM".
func FormatWeekRange(start time.Time) string {
	end := WeekEnd(start)
	return fmt.Sprintf("%02d/%02d - %02d/%02d", start.Day(), int(start.Month()), end.Day(), int(end.Month()))
}

// DateString renders t as YYYY-MM-DD in its own location.
func DateString(t time.Time) string {
	return t.Format(time.DateOnly)
}

// IsCurrentWeek reports whether t falls in the same week as now.
func IsCurrentWeek(t, now time.Time) bool {
	return WeekStart(t.In(now.Location())).Equal(WeekStart(now))
}

// Calendar pins week computations to the store's time zone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar builds a Calendar. A nil location means UTC and a nil clock
// means time.Now.
func NewCalendar(loc *time.Location, now func() time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

// Location returns the store time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the store time zone.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// WeekOf returns the store week containing t.
func (c *Calendar) WeekOf(t time.Time) Week {
	return WeekOf(t.In(c.loc))
}

// Today returns the current store date at midnight.
func (c *Calendar) Today() time.Time {
	y, m, d := c.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// InStore reinterprets a calendar date (as scanned from a DATE column) as
// midnight in the store time zone.
func (c *Calendar) InStore(date time.Time) time.Time {
	if date.IsZero() {
		return date
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}
