package engine

import "quantico/internal/market"

// EquityPoint is one sampled portfolio value during a backtest replay.
type EquityPoint struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// TradeLog records one executed order for the final report.
type TradeLog struct {
	Timestamp float64     `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Side      market.Side `json:"side"`
	Quantity  float64     `json:"quantity"`
	Price     float64     `json:"price"`
}

// Report summarizes a finished backtest.
type Report struct {
	Algorithm   string        `json:"algorithm"`
	StartCash   float64       `json:"start_cash"`
	FinalValue  float64       `json:"final_value"`
	Gain        float64       `json:"gain"`
	ReturnPct   float64       `json:"return_pct"`
	MaxDrawdown float64       `json:"max_drawdown"`
	WinRate     float64       `json:"win_rate"`
	Equity      []EquityPoint `json:"equity"`
	Trades      []TradeLog    `json:"trades"`
}

func buildReport(name string, startCash, final float64, equity []EquityPoint, trades []TradeLog) *Report {
	r := &Report{
		Algorithm:  name,
		StartCash:  startCash,
		FinalValue: final,
		Gain:       final - startCash,
		Equity:     equity,
		Trades:     trades,
	}
	if startCash > 0 {
		r.ReturnPct = (final - startCash) / startCash * 100
	}
	r.MaxDrawdown = maxDrawdown(equity)
	r.WinRate = winRate(trades)
	return r
}

// winRate is the fraction of sells executed above the average cost of the
// buys that preceded them, per symbol. Sells without a recorded cost basis
// (positions held before the replay began) are not counted either way.
func winRate(trades []TradeLog) float64 {
	type basis struct {
		qty  float64
		cost float64
	}
	held := map[string]*basis{}
	wins, decided := 0, 0
	for _, tr := range trades {
		switch tr.Side {
		case market.SideBuy:
			b := held[tr.Symbol]
			if b == nil {
				b = &basis{}
				held[tr.Symbol] = b
			}
			b.qty += tr.Quantity
			b.cost += tr.Quantity * tr.Price
		case market.SideSell:
			b := held[tr.Symbol]
			if b == nil || b.qty <= 0 {
				continue
			}
			decided++
			if tr.Price > b.cost/b.qty {
				wins++
			}
			b.cost -= tr.Quantity * (b.cost / b.qty)
			b.qty -= tr.Quantity
			if b.qty <= 0 {
				delete(held, tr.Symbol)
			}
		}
	}
	if decided == 0 {
		return 0
	}
	return float64(wins) / float64(decided)
}

// maxDrawdown is the largest peak-to-trough decline across the equity
// curve, expressed as a fraction of the peak.
func maxDrawdown(equity []EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (peak - p.Value) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
