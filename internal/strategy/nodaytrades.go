package strategy

import (
	"math"
	"sort"

	"quantico/internal/engine"
	"quantico/internal/observ"
	"quantico/internal/portfolio"
)

func init() {
	Register("no_day_trades", func(opts Options) (engine.Strategy, error) {
		return NewNoDayTrades(opts.AgeFilePath), nil
	})
}

// NoDayTrades holds cheap candidates and ages positions out: anything held
// past the fire-sale age, or trading at or below the fire-sale floor, is
// liquidated. Position ages survive restarts through the age file.
type NoDayTrades struct {
	ages       map[string]int
	file       *portfolio.AgeFile
	candidates []string

	maxCandidates int
	maxBuys       int
	fireSalePrice float64
	fireSaleAge   int
}

func NewNoDayTrades(ageFilePath string) *NoDayTrades {
	return &NoDayTrades{
		ages:          map[string]int{},
		file:          portfolio.NewAgeFile(ageFilePath),
		maxCandidates: 100,
		maxBuys:       30,
		fireSalePrice: 3.00,
		fireSaleAge:   6,
	}
}

func (s *NoDayTrades) Name() string { return "no_day_trades" }

func (s *NoDayTrades) OnMarketWillOpen(e *engine.Engine) {
	ages, err := s.file.Load()
	if err != nil {
		observ.Warn("age_file_load_failed", map[string]any{"err": err.Error()})
	} else {
		s.ages = ages
	}

	funds, err := e.Fundamentals(nil)
	if err != nil {
		observ.Warn("candidate_screen_failed", map[string]any{"err": err.Error()})
		return
	}
	s.candidates = s.candidates[:0]
	for _, f := range funds {
		s.candidates = append(s.candidates, f.Symbol)
	}
	sort.Strings(s.candidates)
	if len(s.candidates) > s.maxCandidates {
		s.candidates = s.candidates[:s.maxCandidates]
	}
	observ.Log("candidates_screened", map[string]any{"count": len(s.candidates)})
}

func (s *NoDayTrades) OnMarketOpen(e *engine.Engine) {}

func (s *NoDayTrades) WhileMarketOpen(e *engine.Engine) {
	s.fireSale(e)
	s.buyCandidates(e)
}

func (s *NoDayTrades) OnMarketClose(e *engine.Engine) {
	e.CancelOpenOrders()

	// Held positions age one day; anything no longer held is forgotten.
	held := map[string]bool{}
	for _, pos := range e.Book().Quotes() {
		if pos.Count > 0 {
			held[pos.Symbol] = true
			s.ages[pos.Symbol]++
		}
	}
	for sym := range s.ages {
		if !held[sym] {
			delete(s.ages, sym)
		}
	}
	if err := s.file.Save(s.ages); err != nil {
		observ.Warn("age_file_save_failed", map[string]any{"err": err.Error()})
	}
}

// fireSale liquidates positions that are too old or have fallen to the
// fire-sale floor.
func (s *NoDayTrades) fireSale(e *engine.Engine) {
	for _, pos := range e.Book().Quotes() {
		if pos.Count <= 0 {
			continue
		}
		price := e.Price(pos.Symbol)
		aged := s.ages[pos.Symbol] >= s.fireSaleAge
		floored := price > 0 && price <= s.fireSalePrice
		if !aged && !floored {
			continue
		}
		if e.Sell(pos.Symbol, pos.Count, nil, nil) {
			observ.Log("fire_sale", map[string]any{
				"symbol": pos.Symbol,
				"age":    s.ages[pos.Symbol],
				"price":  price,
			})
		}
	}
}

// buyCandidates spreads available cash evenly across unheld candidates, up
// to the per-day buy cap.
func (s *NoDayTrades) buyCandidates(e *engine.Engine) {
	var toBuy []string
	for _, sym := range s.candidates {
		if !e.Book().IsHeld(sym) {
			toBuy = append(toBuy, sym)
		}
		if len(toBuy) == s.maxBuys {
			break
		}
	}
	if len(toBuy) == 0 {
		return
	}
	budget := e.Cash() / float64(len(toBuy))
	for _, sym := range toBuy {
		price := e.Price(sym)
		if price <= 0 {
			continue
		}
		qty := math.Floor(budget / price)
		if qty < 1 {
			continue
		}
		limit := price
		e.Buy(sym, qty, nil, &limit)
	}
}

var _ engine.Strategy = (*NoDayTrades)(nil)
