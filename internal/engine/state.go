package engine

import (
	"quantico/internal/schedule"
)

// Mode selects live trading or historical replay at construction time.
type Mode int

const (
	Live Mode = iota
	Backtest
)

func (m Mode) String() string {
	if m == Backtest {
		return "backtest"
	}
	return "live"
}

// State is the engine's per-phase view of the world. Cash and prices are
// refreshed exactly once per phase transition; within a phase strategy code
// reads them without risk of mid-phase drift.
type State struct {
	Cash      float64
	Prices    map[string]float64
	Event     schedule.Phase
	Timestamp float64
	Mode      Mode
	BuyLow    float64
	BuyHigh   float64
}

// DayTradeLedger tracks which symbols were bought or sold during the
// current trading day. A symbol appears in at most one of the two sets;
// once it is in either, the opposite action is refused until the next
// WillOpen reset.
type DayTradeLedger struct {
	bought map[string]bool
	sold   map[string]bool
}

func NewDayTradeLedger() *DayTradeLedger {
	l := &DayTradeLedger{}
	l.Reset()
	return l
}

func (l *DayTradeLedger) Reset() {
	l.bought = map[string]bool{}
	l.sold = map[string]bool{}
}

func (l *DayTradeLedger) MarkBought(symbol string) {
	if !l.sold[symbol] {
		l.bought[symbol] = true
	}
}

func (l *DayTradeLedger) MarkSold(symbol string) {
	if !l.bought[symbol] {
		l.sold[symbol] = true
	}
}

func (l *DayTradeLedger) BoughtToday(symbol string) bool { return l.bought[symbol] }
func (l *DayTradeLedger) SoldToday(symbol string) bool   { return l.sold[symbol] }

func (l *DayTradeLedger) Bought() []string { return keys(l.bought) }
func (l *DayTradeLedger) Sold() []string   { return keys(l.sold) }

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
