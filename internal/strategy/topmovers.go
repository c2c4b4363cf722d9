package strategy

import (
	"math"
	"sort"

	"quantico/internal/engine"
	"quantico/internal/market"
	"quantico/internal/observ"
)

func init() {
	Register("top_movers", func(Options) (engine.Strategy, error) {
		return NewTopMovers(), nil
	})
}

// TopMovers scores every held symbol with three weighted "purchase
// propensity" rounds over a quadratic fit of its recent closes:
// concavity (second derivative), momentum (first derivative), and last
// close ascending, so cheaper stocks rank higher. It then sells the bottom
// two thirds and redeploys a fixed share of cash into the top third,
// weighted by propensity.
type TopMovers struct {
	cashFraction float64
	round1Weight float64
	round2Weight float64
	round3Weight float64
}

func NewTopMovers() *TopMovers {
	return &TopMovers{
		cashFraction: 0.6,
		round1Weight: 1.1,
		round2Weight: 1.7,
		round3Weight: 1.3,
	}
}

func (s *TopMovers) Name() string { return "top_movers" }

func (s *TopMovers) OnMarketWillOpen(e *engine.Engine) { s.rebalance(e) }
func (s *TopMovers) OnMarketOpen(e *engine.Engine)     { s.rebalance(e) }
func (s *TopMovers) WhileMarketOpen(e *engine.Engine)  {}
func (s *TopMovers) OnMarketClose(e *engine.Engine)    { s.rebalance(e) }

type mover struct {
	symbol      string
	count       float64
	firstDeriv  float64
	secondDeriv float64
	lastClose   float64
	lastHigh    float64
	lastLow     float64
	propensity  float64
}

func (s *TopMovers) rebalance(e *engine.Engine) {
	movers := s.analyze(e)
	if len(movers) < 2 {
		return
	}
	n := len(movers)

	// Round 1: concavity. Round 2: momentum. Round 3: last close, cheapest
	// first. Each round hands out geometrically decaying scores so earlier
	// ranks dominate.
	byRank := func(less func(a, b *mover) bool, weight float64) {
		ranked := make([]*mover, n)
		copy(ranked, movers)
		sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
		factor := math.Pow(weight, float64(n))
		for _, m := range ranked {
			m.propensity += factor
			factor /= weight
		}
	}
	byRank(func(a, b *mover) bool { return a.secondDeriv > b.secondDeriv }, s.round1Weight)
	byRank(func(a, b *mover) bool { return a.firstDeriv > b.firstDeriv }, s.round2Weight)
	byRank(func(a, b *mover) bool { return a.lastClose < b.lastClose }, s.round3Weight)

	sort.SliceStable(movers, func(i, j int) bool { return movers[i].propensity > movers[j].propensity })

	badCount := int(math.Round(float64(n) * 2 / 3))
	good, bad := movers[:n-badCount], movers[n-badCount:]

	for _, m := range bad {
		if m.count <= 0 {
			continue
		}
		limit := m.lastLow
		e.Sell(m.symbol, m.count, nil, &limit)
	}

	cash := s.cashFraction * e.Cash()
	totalPropensity := 0.0
	for _, m := range good {
		totalPropensity += m.propensity
	}
	if totalPropensity <= 0 {
		return
	}
	for _, m := range good {
		if m.lastHigh <= 0 {
			continue
		}
		amount := m.propensity / totalPropensity * cash
		qty := math.Round(amount / m.lastHigh)
		if qty < 1 {
			continue
		}
		limit := m.lastLow
		e.Buy(m.symbol, qty, nil, &limit)
	}
}

// analyze fits a quadratic to each held symbol's close series and records
// the derivatives at the most recent bar. Symbols without enough history
// are skipped.
func (s *TopMovers) analyze(e *engine.Engine) []*mover {
	var movers []*mover
	for _, pos := range e.Book().Quotes() {
		bars, err := e.History(pos.Symbol)
		if err != nil {
			observ.Warn("history_fetch_failed", map[string]any{"symbol": pos.Symbol, "err": err.Error()})
			continue
		}
		if len(bars) < 3 {
			continue
		}
		m, ok := fitBars(bars)
		if !ok {
			continue
		}
		m.symbol = pos.Symbol
		m.count = pos.Count
		movers = append(movers, m)
	}
	return movers
}

func fitBars(bars []market.PriceSample) (*mover, bool) {
	t0 := bars[0].Timestamp
	x := make([]float64, len(bars))
	y := make([]float64, len(bars))
	for i, b := range bars {
		x[i] = b.Timestamp - t0
		y[i] = b.Close
	}
	coeffs, err := Polyfit(x, y, 2)
	if err != nil {
		return nil, false
	}
	last := bars[len(bars)-1]
	xLast := x[len(x)-1]
	return &mover{
		firstDeriv:  Eval(Deriv(coeffs, 1), xLast),
		secondDeriv: Eval(Deriv(coeffs, 2), xLast),
		lastClose:   last.Close,
		lastHigh:    last.High,
		lastLow:     last.Low,
	}, true
}

var _ engine.Strategy = (*TopMovers)(nil)
