package schedule

import (
	"context"
	"fmt"
	"time"

	"quantico/internal/calendar"
	"quantico/internal/observ"
)

// Live drives the four phase callbacks against real market-calendar
// sessions: WillOpen one hour before open, Open at the bell, WhileOpen on a
// fixed interval inside [open, close), Close at the bell. After Close it
// recomputes the next session and rearms, cycling until the context is
// cancelled.
//
// WhileOpen and Close race only at the closing bell. Both arms run in one
// select loop, and a tick observed after the close time (or after Close has
// fired) is dropped rather than applied, so a day's phases never interleave
// out of order.
type Live struct {
	cal      calendar.Source
	interval time.Duration
	handlers Handlers

	// now is swappable for tests.
	now func() time.Time
}

func NewLive(cal calendar.Source, interval time.Duration, handlers Handlers) *Live {
	if interval <= 0 {
		interval = 900 * time.Second
	}
	return &Live{cal: cal, interval: interval, handlers: handlers, now: time.Now}
}

// Run cycles trading days until the context is cancelled or the calendar
// yields no further session. A calendar miss is fatal: there is nothing to
// schedule against.
func (l *Live) Run(ctx context.Context) error {
	for {
		if err := l.runDay(ctx); err != nil {
			return err
		}
	}
}

func (l *Live) runDay(ctx context.Context) error {
	sess, err := l.cal.NextSession(l.now())
	if err != nil {
		return fmt.Errorf("schedule next session: %w", err)
	}
	willOpen := sess.Open.Add(-time.Hour)

	observ.Log("session_scheduled", map[string]any{
		"open":  sess.Open.Format(time.RFC3339),
		"close": sess.Close.Format(time.RFC3339),
	})

	if err := l.waitUntil(ctx, willOpen); err != nil {
		return err
	}
	l.handlers.fire(PhaseWillOpen)

	if err := l.waitUntil(ctx, sess.Open); err != nil {
		return err
	}
	l.handlers.fire(PhaseOpen)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	closeTimer := time.NewTimer(sess.Close.Sub(l.now()))
	defer closeTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Guard the close boundary: a tick that lands at or past the
			// closing bell must not mutate state after Close.
			if !l.now().Before(sess.Close) {
				observ.IncCounter("scheduler_ticks_dropped_total", nil)
				continue
			}
			l.handlers.fire(PhaseWhileOpen)
		case <-closeTimer.C:
			ticker.Stop()
			l.handlers.fire(PhaseClose)
			return nil
		}
	}
}

// waitUntil blocks until t or context cancellation. Past times return
// immediately.
func (l *Live) waitUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(l.now())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
