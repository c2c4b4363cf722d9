package calendar

import (
	"fmt"
	"time"
)

// Session is one trading day's open and close.
type Session struct {
	Open  time.Time
	Close time.Time
}

// Source resolves upcoming trading sessions. Injected into the scheduler so
// tests can drive it with a fixed calendar.
type Source interface {
	// NextSession returns the first session whose close is after t.
	NextSession(t time.Time) (Session, error)
}

// maxLookaheadDays bounds the forward scan over weekends and holidays.
const maxLookaheadDays = 30

// NYSE computes regular-hours sessions (9:30-16:00 ET) for the New York
// Stock Exchange, skipping weekends and observed US market holidays.
type NYSE struct {
	loc *time.Location
}

func NewNYSE() (*NYSE, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone: %w", err)
	}
	return &NYSE{loc: loc}, nil
}

func (c *NYSE) NextSession(t time.Time) (Session, error) {
	et := t.In(c.loc)
	day := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i < maxLookaheadDays; i++ {
		d := day.AddDate(0, 0, i)
		if !c.isTradingDay(d) {
			continue
		}
		s := Session{
			Open:  time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, c.loc),
			Close: time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, c.loc),
		}
		if s.Close.After(t) {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("no trading session within %d days of %s", maxLookaheadDays, t.Format(time.RFC3339))
}

func (c *NYSE) isTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.isHoliday(d)
}

// isHoliday covers the fixed-date and floating US market holidays. Good
// Friday is looked up from a table since Easter computation is not worth
// carrying here.
func (c *NYSE) isHoliday(d time.Time) bool {
	y, m, day := d.Year(), d.Month(), d.Day()

	// Fixed-date holidays, shifted to the nearest weekday when they land
	// on a weekend.
	for _, h := range []struct {
		month time.Month
		day   int
	}{
		{time.January, 1},   // New Year's Day
		{time.June, 19},     // Juneteenth
		{time.July, 4},      // Independence Day
		{time.December, 25}, // Christmas
	} {
		obs := observedDate(y, h.month, h.day, c.loc)
		if obs.Month() == m && obs.Day() == day {
			return true
		}
	}

	// Floating holidays: nth weekday of month.
	switch {
	case m == time.January && d.Weekday() == time.Monday && nthWeekdayOfMonth(d) == 3:
		return true // MLK Day
	case m == time.February && d.Weekday() == time.Monday && nthWeekdayOfMonth(d) == 3:
		return true // Presidents' Day
	case m == time.May && d.Weekday() == time.Monday && isLastWeekdayOfMonth(d):
		return true // Memorial Day
	case m == time.September && d.Weekday() == time.Monday && nthWeekdayOfMonth(d) == 1:
		return true // Labor Day
	case m == time.November && d.Weekday() == time.Thursday && nthWeekdayOfMonth(d) == 4:
		return true // Thanksgiving
	}

	if gf, ok := goodFriday[y]; ok && gf.month == m && gf.day == day {
		return true
	}
	return false
}

// observedDate shifts a weekend holiday to Friday (if Saturday) or Monday
// (if Sunday), matching NYSE observance rules.
func observedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekdayOfMonth(d time.Time) int {
	return (d.Day()-1)/7 + 1
}

func isLastWeekdayOfMonth(d time.Time) bool {
	return d.AddDate(0, 0, 7).Month() != d.Month()
}

var goodFriday = map[int]struct {
	month time.Month
	day   int
}{
	2024: {time.March, 29},
	2025: {time.April, 18},
	2026: {time.April, 3},
	2027: {time.March, 26},
	2028: {time.April, 14},
	2029: {time.March, 30},
	2030: {time.April, 19},
}

// Fixed is a test calendar that returns a canned list of sessions in order.
type Fixed struct {
	Sessions []Session
}

func (f *Fixed) NextSession(t time.Time) (Session, error) {
	for _, s := range f.Sessions {
		if s.Close.After(t) {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("no trading session after %s", t.Format(time.RFC3339))
}
