package engine

import (
	"context"
	"fmt"

	"quantico/internal/market"
	"quantico/internal/observ"
	"quantico/internal/schedule"
)

// runBacktest replays the full historical series for the symbols in the
// position book, firing the same phase handlers the live scheduler would.
// Each historical bar stands in for one trading day: market-will-open and
// market-open see the bar's open, while-market-open fires twice with the
// low and the high, and market-close sees the close. Cash rolls from one
// synthesized day into the next.
func (e *Engine) runBacktest(ctx context.Context) error {
	if e.state.Cash <= 0 {
		return fmt.Errorf("backtest requires positive starting cash, got %.2f", e.state.Cash)
	}

	series := map[string][]market.PriceSample{}
	for _, pos := range e.cfg.Book.Quotes() {
		bars, err := e.cfg.Data.History(ctx, pos.Symbol, e.cfg.HistoryInterval, e.cfg.HistorySpan, market.BoundsRegular)
		if err != nil {
			return fmt.Errorf("load history for %s: %w", pos.Symbol, err)
		}
		series[pos.Symbol] = bars
	}
	e.hist = schedule.BuildHistorical(series)
	if e.hist.Empty() {
		return fmt.Errorf("backtest requires at least one historical bar")
	}

	e.logf("backtest_started", map[string]any{
		"cash":       e.state.Cash,
		"timestamps": len(e.hist.Timestamps),
		"interval":   string(e.cfg.HistoryInterval),
		"span":       string(e.cfg.HistorySpan),
	})

	startCash := e.state.Cash
	prevValue := 0.0
	havePrev := false

	for _, ts := range e.hist.Timestamps {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.state.Timestamp = ts

		// Roll the value change since the last timestamp into cash before
		// the synthesized day starts, so appreciation of held positions
		// becomes buying power for the strategy.
		value := e.state.Cash + e.Value()
		if havePrev {
			e.state.Cash += value - prevValue
			e.logf("backtest_cash_rolled", map[string]any{
				"timestamp": ts,
				"change":    value - prevValue,
				"cash":      e.state.Cash,
				"gain_pct":  (e.state.Cash - startCash) / startCash * 100,
			})
		}
		prevValue = e.state.Cash + e.Value()
		havePrev = true

		open := func(b market.PriceSample) float64 { return b.Open }
		low := func(b market.PriceSample) float64 { return b.Low }
		high := func(b market.PriceSample) float64 { return b.High }
		cls := func(b market.PriceSample) float64 { return b.Close }

		e.OnMarketWillOpen(e.hist.Snapshot(ts, e.state.Cash, open))
		e.OnMarketOpen(e.hist.Snapshot(ts, e.state.Cash, open))
		e.WhileMarketOpen(e.hist.Snapshot(ts, e.state.Cash, low))
		e.WhileMarketOpen(e.hist.Snapshot(ts, e.state.Cash, high))
		e.OnMarketClose(e.hist.Snapshot(ts, e.state.Cash, cls))

		dayEnd := e.state.Cash + e.Value()
		e.equity = append(e.equity, EquityPoint{Timestamp: ts, Value: dayEnd})
		observ.SetGauge("backtest_equity", dayEnd, map[string]string{"algorithm": e.cfg.Name})
		e.logf("backtest_day_closed", map[string]any{
			"timestamp": ts,
			"cash":      e.state.Cash,
			"value":     dayEnd,
		})
	}

	final := e.state.Cash + e.Value()
	e.report = buildReport(e.cfg.Name, startCash, final, e.equity, e.trades)
	e.logf("backtest_finished", map[string]any{
		"start_cash":  startCash,
		"final_value": final,
		"gain":        final - startCash,
		"return_pct":  e.report.ReturnPct,
		"drawdown":    e.report.MaxDrawdown,
		"trades":      len(e.trades),
	})
	return nil
}

// Report returns the backtest report, nil until a replay finishes.
func (e *Engine) Report() *Report { return e.report }
