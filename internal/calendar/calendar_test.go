package calendar

import (
	"testing"
	"time"
)

func mustNYSE(t *testing.T) *NYSE {
	t.Helper()
	c, err := NewNYSE()
	if err != nil {
		t.Fatalf("NewNYSE: %v", err)
	}
	return c
}

func TestNextSessionSkipsWeekend(t *testing.T) {
	c := mustNYSE(t)
	loc := c.loc

	// Saturday 2026-01-10
	sat := time.Date(2026, time.January, 10, 12, 0, 0, 0, loc)
	s, err := c.NextSession(sat)
	if err != nil {
		t.Fatalf("NextSession: %v", err)
	}
	if s.Open.Weekday() != time.Monday {
		t.Fatalf("want Monday open, got %s", s.Open.Weekday())
	}
	if s.Open.Hour() != 9 || s.Open.Minute() != 30 {
		t.Fatalf("want 9:30 open, got %s", s.Open.Format("15:04"))
	}
	if s.Close.Hour() != 16 {
		t.Fatalf("want 16:00 close, got %s", s.Close.Format("15:04"))
	}
}

func TestNextSessionSkipsHolidays(t *testing.T) {
	c := mustNYSE(t)
	loc := c.loc

	cases := []struct {
		name     string
		from     time.Time
		wantDate string
	}{
		{
			// July 3 2026 is the observed Independence Day (July 4 is a
			// Saturday), so Thursday evening rolls to Monday July 6.
			name:     "independence_day_observed",
			from:     time.Date(2026, time.July, 2, 17, 0, 0, 0, loc),
			wantDate: "2026-07-06",
		},
		{
			// Thanksgiving Thursday Nov 26 2026.
			name:     "thanksgiving",
			from:     time.Date(2026, time.November, 25, 17, 0, 0, 0, loc),
			wantDate: "2026-11-27",
		},
		{
			// MLK Day Monday Jan 19 2026.
			name:     "mlk_day",
			from:     time.Date(2026, time.January, 17, 0, 0, 0, 0, loc),
			wantDate: "2026-01-20",
		},
		{
			// Good Friday Apr 3 2026.
			name:     "good_friday",
			from:     time.Date(2026, time.April, 2, 17, 0, 0, 0, loc),
			wantDate: "2026-04-06",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := c.NextSession(tc.from)
			if err != nil {
				t.Fatalf("NextSession: %v", err)
			}
			if got := s.Open.Format("2006-01-02"); got != tc.wantDate {
				t.Fatalf("want open on %s, got %s", tc.wantDate, got)
			}
		})
	}
}

func TestNextSessionMidDayReturnsSameDay(t *testing.T) {
	c := mustNYSE(t)
	// Wednesday 2026-01-14, 10:00 ET: session close is still ahead.
	mid := time.Date(2026, time.January, 14, 10, 0, 0, 0, c.loc)
	s, err := c.NextSession(mid)
	if err != nil {
		t.Fatalf("NextSession: %v", err)
	}
	if got := s.Open.Format("2006-01-02"); got != "2026-01-14" {
		t.Fatalf("want same-day session, got %s", got)
	}
}

func TestFixedExhausted(t *testing.T) {
	f := &Fixed{}
	if _, err := f.NextSession(time.Now()); err == nil {
		t.Fatal("want error from empty fixed calendar")
	}
}
