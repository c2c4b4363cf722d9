package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"quantico/internal/engine"
	"quantico/internal/market"
	"quantico/internal/portfolio"
)

type fakeData struct {
	bars  map[string][]market.PriceSample
	funds []market.Fundamental
}

func (f *fakeData) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	bars := f.bars[symbol]
	if len(bars) == 0 {
		return 0, nil
	}
	return bars[len(bars)-1].Close, nil
}

func (f *fakeData) History(_ context.Context, symbol string, _ market.Interval, _ market.Span, _ market.Bounds) ([]market.PriceSample, error) {
	return f.bars[symbol], nil
}

func (f *fakeData) FundamentalsByCriteria(_ context.Context, _, _ float64, _ []market.Tag) ([]market.Fundamental, error) {
	return f.funds, nil
}

type noopGateway struct{}

func (noopGateway) PlaceBuy(_ context.Context, _ string, _ float64, _, _ *float64) (string, error) {
	return "", nil
}
func (noopGateway) PlaceSell(_ context.Context, _ string, _ float64, _, _ *float64) (string, error) {
	return "", nil
}
func (noopGateway) Cancel(_ context.Context, _ string) error          { return nil }
func (noopGateway) CancelAllOpen(_ context.Context) ([]string, error) { return nil, nil }
func (noopGateway) OrdersToday(_ context.Context) ([]market.OrderRecord, error) {
	return nil, nil
}
func (noopGateway) BuyingPower(_ context.Context) (float64, error) { return 0, nil }

func bar(ts, open, close, high, low float64) market.PriceSample {
	return market.PriceSample{Timestamp: ts, Open: open, Close: close, High: high, Low: low}
}

func runBacktest(t *testing.T, strat engine.Strategy, cash float64, holdings map[string]float64, bars map[string][]market.PriceSample, funds []market.Fundamental) *engine.Engine {
	t.Helper()
	book := portfolio.NewBook(nil)
	for sym := range bars {
		book.AddPosition(sym, holdings[sym])
	}
	e, err := engine.New(engine.Config{
		Data:    &fakeData{bars: bars, funds: funds},
		Gateway: noopGateway{},
		Book:    book,
		Name:    strat.Name(),
		Mode:    engine.Backtest,
		Cash:    cash,
		BuyLow:  0,
		BuyHigh: 1e6,
	}, strat)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))
	return e
}

func TestRegistryResolvesKnownStrategies(t *testing.T) {
	for _, name := range []string{"no_day_trades", "top_movers", "short_intensive"} {
		s, err := New(name, Options{AgeFilePath: filepath.Join(t.TempDir(), "ages")})
		require.NoError(t, err)
		require.Equal(t, name, s.Name())
	}
	require.Equal(t, []string{"no_day_trades", "short_intensive", "top_movers"}, Names())
}

func TestRegistryUnknownStrategy(t *testing.T) {
	_, err := New("momentum_god", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown strategy")
}

func TestNoDayTradesFireSaleOnFloorPrice(t *testing.T) {
	ageFile := filepath.Join(t.TempDir(), "ages")
	strat := NewNoDayTrades(ageFile)

	// JUNK trades at 2.50, below the 3.00 fire-sale floor.
	bars := map[string][]market.PriceSample{
		"JUNK": {bar(100, 2.5, 2.5, 2.5, 2.5)},
	}
	e := runBacktest(t, strat, 1000, map[string]float64{"JUNK": 10}, bars, nil)

	require.False(t, e.Book().IsHeld("JUNK"), "floored position should be liquidated")
	require.Equal(t, 1025.0, e.Cash())
}

func TestNoDayTradesAgesPersist(t *testing.T) {
	ageFile := filepath.Join(t.TempDir(), "ages")
	strat := NewNoDayTrades(ageFile)

	// SOLID holds steady at 10.00, well above the floor.
	bars := map[string][]market.PriceSample{
		"SOLID": {bar(100, 10, 10, 10, 10), bar(200, 10, 10, 10, 10)},
	}
	e := runBacktest(t, strat, 1000, map[string]float64{"SOLID": 4}, bars, nil)

	require.True(t, e.Book().IsHeld("SOLID"))
	data, err := os.ReadFile(ageFile)
	require.NoError(t, err)
	require.Equal(t, "SOLID=2\n", string(data))
}

func TestNoDayTradesFireSaleOnAge(t *testing.T) {
	ageFile := filepath.Join(t.TempDir(), "ages")
	require.NoError(t, portfolio.NewAgeFile(ageFile).Save(map[string]int{"OLD": 6}))
	strat := NewNoDayTrades(ageFile)

	bars := map[string][]market.PriceSample{
		"OLD": {bar(100, 10, 10, 10, 10)},
	}
	e := runBacktest(t, strat, 1000, map[string]float64{"OLD": 2}, bars, nil)

	require.False(t, e.Book().IsHeld("OLD"), "aged-out position should be liquidated")
	require.Equal(t, 1020.0, e.Cash())
}

func TestTopMoversSellsWorstPerformers(t *testing.T) {
	// RISE climbs steadily, FALL declines, FLAT stalls. The strategy needs
	// three prior bars before it trades, so six bars give it three live days.
	mk := func(closes ...float64) []market.PriceSample {
		var out []market.PriceSample
		for i, c := range closes {
			ts := float64((i + 1) * 86400)
			out = append(out, bar(ts, c, c, c+0.5, c-0.5))
		}
		return out
	}
	bars := map[string][]market.PriceSample{
		"RISE": mk(10, 11, 12, 13, 14, 15),
		"FALL": mk(20, 18, 16, 14, 12, 10),
		"FLAT": mk(15, 15, 15, 15, 15, 15),
	}
	strat := NewTopMovers()
	e := runBacktest(t, strat, 1000, map[string]float64{"FALL": 5, "FLAT": 5}, bars, nil)

	require.False(t, e.Book().IsHeld("FALL"), "declining stock should be sold")
	require.True(t, e.Book().IsHeld("RISE"), "best performer should be bought")
	rep := e.Report()
	require.NotNil(t, rep)
	require.NotEmpty(t, rep.Trades)
}

func TestShortIntensiveSellsOnSteepDrop(t *testing.T) {
	// CRSH loses about 10% per bar; the normalized slope crosses the -5%
	// threshold well within the replay.
	mk := func(closes ...float64) []market.PriceSample {
		var out []market.PriceSample
		for i, c := range closes {
			ts := float64((i + 1) * 900)
			out = append(out, bar(ts, c, c, c, c))
		}
		return out
	}
	bars := map[string][]market.PriceSample{
		"CRSH": mk(20, 18, 16, 14, 12, 10),
	}
	strat := NewShortIntensive()
	funds := []market.Fundamental{{Symbol: "CRSH", Low: 10, High: 20}}
	e := runBacktest(t, strat, 1000, map[string]float64{"CRSH": 5}, bars, funds)

	require.False(t, e.Book().IsHeld("CRSH"), "crashing position should be sold")
}
