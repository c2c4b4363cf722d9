package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantico/internal/calendar"
	"quantico/internal/market"
	"quantico/internal/observ"
)

func TestLiveFiresPhasesInOrder(t *testing.T) {
	now := time.Now()
	cal := &calendar.Fixed{Sessions: []calendar.Session{
		{Open: now.Add(30 * time.Millisecond), Close: now.Add(120 * time.Millisecond)},
	}}

	var mu sync.Mutex
	var fired []Phase
	record := func(p Phase) func() {
		return func() {
			mu.Lock()
			fired = append(fired, p)
			mu.Unlock()
		}
	}

	l := NewLive(cal, 25*time.Millisecond, Handlers{
		MarketWillOpen:  record(PhaseWillOpen),
		MarketOpen:      record(PhaseOpen),
		WhileMarketOpen: record(PhaseWhileOpen),
		MarketClose:     record(PhaseClose),
	})

	// One session in the fixed calendar: the second runDay errors out,
	// ending Run without needing explicit cancellation.
	err := l.Run(context.Background())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(fired), 3)
	assert.Equal(t, PhaseWillOpen, fired[0])
	assert.Equal(t, PhaseOpen, fired[1])
	assert.Equal(t, PhaseClose, fired[len(fired)-1])
	for _, p := range fired[2 : len(fired)-1] {
		assert.Equal(t, PhaseWhileOpen, p)
	}
}

func TestLiveDropsTickAtCloseBoundary(t *testing.T) {
	start := time.Now()
	sess := calendar.Session{Open: start, Close: start.Add(300 * time.Millisecond)}
	cal := &calendar.Fixed{Sessions: []calendar.Session{sess}}

	// The handlers run on the Run goroutine, so the swapped clock needs no
	// locking: the first intraday tick jumps it past the closing bell and
	// every later tick must be dropped instead of fired.
	clock := start
	ticks := 0
	before := observ.CounterValue("scheduler_ticks_dropped_total", nil)

	l := NewLive(cal, 10*time.Millisecond, Handlers{
		WhileMarketOpen: func() {
			ticks++
			clock = sess.Close.Add(time.Minute)
		},
	})
	l.now = func() time.Time { return clock }

	err := l.Run(context.Background())
	require.Error(t, err, "fixed calendar exhausts after the one session")

	assert.Equal(t, 1, ticks, "ticks at or past the close must not fire the handler")
	assert.Greater(t, observ.CounterValue("scheduler_ticks_dropped_total", nil), before)
}

func TestLiveCancelledBeforeOpen(t *testing.T) {
	now := time.Now()
	cal := &calendar.Fixed{Sessions: []calendar.Session{
		{Open: now.Add(time.Hour), Close: now.Add(2 * time.Hour)},
	}}
	l := NewLive(cal, time.Second, Handlers{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandlersSkipNil(t *testing.T) {
	var h Handlers
	// Must not panic.
	for _, p := range []Phase{PhaseWillOpen, PhaseOpen, PhaseWhileOpen, PhaseClose} {
		h.fire(p)
	}
}

func TestBuildHistoricalMergesAndSorts(t *testing.T) {
	series := map[string][]market.PriceSample{
		"AAPL": {
			{Timestamp: 300, Open: 3},
			{Timestamp: 100, Open: 1},
		},
		"NVDA": {
			{Timestamp: 200, Open: 2},
			{Timestamp: 100, Open: 10},
		},
	}
	h := BuildHistorical(series)

	assert.Equal(t, []float64{100, 200, 300}, h.Timestamps)

	bar, ok := h.SampleAt("NVDA", 200)
	require.True(t, ok)
	assert.Equal(t, 2.0, bar.Open)

	_, ok = h.SampleAt("NVDA", 300)
	assert.False(t, ok)
	_, ok = h.SampleAt("MSFT", 100)
	assert.False(t, ok)
}

func TestHistoricalSnapshotPicksField(t *testing.T) {
	h := BuildHistorical(map[string][]market.PriceSample{
		"AAPL": {{Timestamp: 100, Open: 10, Low: 8, High: 12, Close: 11}},
		"NVDA": {{Timestamp: 100, Open: 20, Low: 18, High: 22, Close: 21}},
	})

	snap := h.Snapshot(100, 1000, func(p market.PriceSample) float64 { return p.Low })
	assert.Equal(t, 1000.0, snap.Cash)
	assert.Equal(t, map[string]float64{"AAPL": 8, "NVDA": 18}, snap.Prices)

	// Symbols without a bar at ts are omitted, not zero-filled.
	snap = h.Snapshot(999, 0, func(p market.PriceSample) float64 { return p.Open })
	assert.Empty(t, snap.Prices)
}

func TestHistoricalEmpty(t *testing.T) {
	assert.True(t, BuildHistorical(nil).Empty())
	assert.False(t, BuildHistorical(map[string][]market.PriceSample{
		"A": {{Timestamp: 1}},
	}).Empty())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "will_open", PhaseWillOpen.String())
	assert.Equal(t, "while_open", PhaseWhileOpen.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
