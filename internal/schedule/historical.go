package schedule

import (
	"sort"

	"quantico/internal/market"
)

// Historical is the backtest clock: a merged, ascending index of bar
// timestamps across symbols, with per-symbol sample lookup. It carries no
// timers; the engine walks Timestamps in order and invokes phases
// synchronously, which keeps backtests deterministic and single-threaded.
type Historical struct {
	Timestamps []float64
	samples    map[string]map[float64]market.PriceSample
}

// BuildHistorical merges per-symbol series into one ordered time index.
func BuildHistorical(series map[string][]market.PriceSample) *Historical {
	h := &Historical{samples: make(map[string]map[float64]market.PriceSample, len(series))}
	seen := map[float64]bool{}
	for symbol, bars := range series {
		bySym := make(map[float64]market.PriceSample, len(bars))
		for _, bar := range bars {
			bySym[bar.Timestamp] = bar
			if !seen[bar.Timestamp] {
				seen[bar.Timestamp] = true
				h.Timestamps = append(h.Timestamps, bar.Timestamp)
			}
		}
		h.samples[symbol] = bySym
	}
	sort.Float64s(h.Timestamps)
	return h
}

// SampleAt returns the bar for a symbol at an exact timestamp.
func (h *Historical) SampleAt(symbol string, ts float64) (market.PriceSample, bool) {
	bySym, ok := h.samples[symbol]
	if !ok {
		return market.PriceSample{}, false
	}
	bar, ok := bySym[ts]
	return bar, ok
}

// Snapshot builds the injected phase snapshot for one timestamp, selecting
// the given field of each symbol's bar.
func (h *Historical) Snapshot(ts float64, cash float64, pick func(market.PriceSample) float64) *market.Snapshot {
	prices := make(map[string]float64, len(h.samples))
	for symbol, bySym := range h.samples {
		if bar, ok := bySym[ts]; ok {
			prices[symbol] = pick(bar)
		}
	}
	return &market.Snapshot{Cash: cash, Prices: prices}
}

// Empty reports whether the index holds no timestamps.
func (h *Historical) Empty() bool {
	return len(h.Timestamps) == 0
}
