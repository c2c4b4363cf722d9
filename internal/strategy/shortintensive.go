package strategy

import (
	"math"
	"sort"

	"quantico/internal/engine"
	"quantico/internal/market"
	"quantico/internal/observ"
)

func init() {
	Register("short_intensive", func(Options) (engine.Strategy, error) {
		return NewShortIntensive(), nil
	})
}

// maxTrackedPoints caps the intraday series so a long-running process does
// not grow without bound.
const maxTrackedPoints = 128

// ShortIntensive sells rapidly when a tracked symbol's normalized price
// slope falls below a threshold, and buys on half-threshold upward moves.
// It samples prices on every intraday tick and fits a cubic (quadratic
// when data is thin) to estimate the slope.
type ShortIntensive struct {
	threshold float64
	tags      []market.Tag

	symbols []string
	times   map[string][]float64
	prices  map[string][]float64
}

func NewShortIntensive() *ShortIntensive {
	return &ShortIntensive{
		threshold: 0.05,
		tags: []market.Tag{
			market.TagTopMovers,
			market.TagMostPopular,
			market.TagInvestmentOrTrust,
		},
		times:  map[string][]float64{},
		prices: map[string][]float64{},
	}
}

func (s *ShortIntensive) Name() string { return "short_intensive" }

func (s *ShortIntensive) OnMarketWillOpen(e *engine.Engine) {
	funds, err := e.Fundamentals(s.tags)
	if err != nil {
		observ.Warn("candidate_screen_failed", map[string]any{"err": err.Error()})
		return
	}
	s.symbols = s.symbols[:0]
	for _, f := range funds {
		s.symbols = append(s.symbols, f.Symbol)
	}
	// Track held symbols too, so an exit signal can fire on positions that
	// fell out of the screen.
	for _, pos := range e.Book().Quotes() {
		if pos.Count > 0 && !contains(s.symbols, pos.Symbol) {
			s.symbols = append(s.symbols, pos.Symbol)
		}
	}
	sort.Strings(s.symbols)
	observ.Log("candidates_screened", map[string]any{"count": len(s.symbols)})
}

func (s *ShortIntensive) OnMarketOpen(e *engine.Engine) {}

func (s *ShortIntensive) WhileMarketOpen(e *engine.Engine) {
	s.sample(e)
	s.tradeOnSlope(e)
}

func (s *ShortIntensive) OnMarketClose(e *engine.Engine) {
	e.CancelOpenOrders()
}

func (s *ShortIntensive) sample(e *engine.Engine) {
	ts := e.Timestamp()
	for _, sym := range s.symbols {
		// One sample per timestamp; duplicate x values break the fit.
		if n := len(s.times[sym]); n > 0 && s.times[sym][n-1] == ts {
			continue
		}
		price := e.Price(sym)
		if price <= 0 {
			continue
		}
		s.times[sym] = appendCapped(s.times[sym], ts)
		s.prices[sym] = appendCapped(s.prices[sym], price)
	}
}

func (s *ShortIntensive) tradeOnSlope(e *engine.Engine) {
	for _, sym := range s.symbols {
		slope, ok := s.normalizedSlope(sym)
		if !ok {
			continue
		}
		lastPrice := s.prices[sym][len(s.prices[sym])-1]
		switch {
		case slope >= s.threshold/2 && !e.Book().IsHeld(sym):
			qty := math.Floor(0.1 * e.Cash() / lastPrice)
			if qty >= 1 {
				limit := lastPrice
				e.Buy(sym, qty, nil, &limit)
			}
		case slope <= -s.threshold && e.Book().IsHeld(sym):
			pos, _ := e.Book().Get(sym)
			limit := lastPrice
			e.Sell(sym, pos.Count, nil, &limit)
		}
	}
}

// normalizedSlope fits the sampled series and returns the slope at the
// latest sample, scaled to one sampling interval and divided by the latest
// price, so the threshold reads as a fractional move per tick.
func (s *ShortIntensive) normalizedSlope(sym string) (float64, bool) {
	t, y := s.times[sym], s.prices[sym]
	if len(t) < 3 {
		return 0, false
	}
	t0 := t[0]
	x := make([]float64, len(t))
	for i, ti := range t {
		x[i] = ti - t0
	}
	degree := 3
	if len(x) < 4 {
		degree = 2
	}
	coeffs, err := Polyfit(x, y, degree)
	if err != nil {
		coeffs, err = Polyfit(x, y, 2)
		if err != nil {
			return 0, false
		}
	}
	lastPrice := y[len(y)-1]
	if lastPrice <= 0 {
		return 0, false
	}
	spacing := x[len(x)-1] / float64(len(x)-1)
	slope := Eval(Deriv(coeffs, 1), x[len(x)-1])
	return slope * spacing / lastPrice, true
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > maxTrackedPoints {
		s = s[len(s)-maxTrackedPoints:]
	}
	return s
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

var _ engine.Strategy = (*ShortIntensive)(nil)
