package broker

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quantico/internal/market"
)

// Sim implements both capability interfaces in memory: seeded price walks
// for data, immediate fills for orders. Used for paper trading and tests.
// With a fixed seed the generated history is reproducible.
type Sim struct {
	mu          sync.Mutex
	random      *rand.Rand
	buyingPower float64
	baseQuotes  map[string]*simQuote
	orders      []market.OrderRecord
	open        map[string]market.OrderRecord
	now         func() time.Time
}

type simQuote struct {
	BasePrice  float64
	Volatility float64 // daily volatility as a decimal
	last       float64
}

func NewSim(seed int64, buyingPower float64) *Sim {
	return &Sim{
		random:      rand.New(rand.NewSource(seed)),
		buyingPower: buyingPower,
		baseQuotes: map[string]*simQuote{
			"AAPL": {BasePrice: 206.80, Volatility: 0.025},
			"NVDA": {BasePrice: 450.00, Volatility: 0.035},
			"BIOX": {BasePrice: 12.50, Volatility: 0.055},
			"MSFT": {BasePrice: 415.75, Volatility: 0.022},
		},
		open: map[string]market.OrderRecord{},
		now:  time.Now,
	}
}

var _ market.MarketDataSource = (*Sim)(nil)
var _ market.OrderGateway = (*Sim)(nil)

// AddSymbol registers a new symbol in the simulation.
func (s *Sim) AddSymbol(symbol string, basePrice, volatility float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseQuotes[strings.ToUpper(symbol)] = &simQuote{BasePrice: basePrice, Volatility: volatility}
}

func (s *Sim) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.baseQuotes[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return 0, NewBadSymbolError(symbol, "symbol not supported by sim broker")
	}
	// Random walk at per-minute volatility, assuming a 390-minute session.
	step := s.random.NormFloat64() * q.Volatility / math.Sqrt(390)
	if q.last == 0 {
		q.last = q.BasePrice
	}
	q.last *= 1 + step
	return roundToTick(q.last), nil
}

func (s *Sim) History(ctx context.Context, symbol string, interval market.Interval, span market.Span, bounds market.Bounds) ([]market.PriceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.baseQuotes[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, NewBadSymbolError(symbol, "symbol not supported by sim broker")
	}

	bars := barsFor(span, interval)
	step := stepFor(interval)
	start := s.now().Add(-time.Duration(bars) * step)

	price := q.BasePrice
	out := make([]market.PriceSample, 0, bars)
	for i := 0; i < bars; i++ {
		drift := s.random.NormFloat64() * q.Volatility / math.Sqrt(390)
		next := price * (1 + drift)
		high := math.Max(price, next) * (1 + s.random.Float64()*q.Volatility/10)
		low := math.Min(price, next) * (1 - s.random.Float64()*q.Volatility/10)
		out = append(out, market.PriceSample{
			Timestamp: float64(start.Add(time.Duration(i) * step).Unix()),
			Open:      roundToTick(price),
			Close:     roundToTick(next),
			High:      roundToTick(high),
			Low:       roundToTick(low),
		})
		price = next
	}
	return out, nil
}

func (s *Sim) FundamentalsByCriteria(ctx context.Context, low, high float64, tags []market.Tag) ([]market.Fundamental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []market.Fundamental
	for symbol, q := range s.baseQuotes {
		if q.BasePrice >= low && q.BasePrice <= high {
			out = append(out, market.Fundamental{Symbol: symbol, Low: low, High: high})
		}
	}
	return out, nil
}

func (s *Sim) PlaceBuy(ctx context.Context, symbol string, quantity float64, stop, limit *float64) (string, error) {
	return s.record(symbol, market.SideBuy, quantity, stop, limit)
}

func (s *Sim) PlaceSell(ctx context.Context, symbol string, quantity float64, stop, limit *float64) (string, error) {
	return s.record(symbol, market.SideSell, quantity, stop, limit)
}

func (s *Sim) record(symbol string, side market.Side, quantity float64, stop, limit *float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := s.baseQuotes[symbol]; !ok {
		return "", NewBadSymbolError(symbol, "symbol not supported by sim broker")
	}
	price := 0.0
	switch {
	case limit != nil:
		price = *limit
	case stop != nil:
		price = *stop
	default:
		price = s.baseQuotes[symbol].BasePrice
	}
	rec := market.OrderRecord{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Side:         side,
		TransactedAt: s.now(),
		Quantity:     quantity,
		Price:        price,
	}
	s.orders = append(s.orders, rec)
	if side == market.SideBuy {
		s.buyingPower -= price * quantity
	} else {
		s.buyingPower += price * quantity
	}
	return rec.ID, nil
}

func (s *Sim) Cancel(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, orderID)
	return nil
}

func (s *Sim) CancelAllOpen(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	s.open = map[string]market.OrderRecord{}
	return ids, nil
}

func (s *Sim) OrdersToday(ctx context.Context) ([]market.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]market.OrderRecord, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func (s *Sim) BuyingPower(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buyingPower, nil
}

// SetNow overrides the clock for tests.
func (s *Sim) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func barsFor(span market.Span, interval market.Interval) int {
	switch span {
	case market.SpanDay:
		return 39 // one session of 10-minute bars
	case market.SpanWeek:
		return 5 * 39
	default: // year
		if interval == market.IntervalDay {
			return 252
		}
		return 252 * 39
	}
}

func stepFor(interval market.Interval) time.Duration {
	switch interval {
	case market.IntervalFiveMinute:
		return 5 * time.Minute
	case market.IntervalTenMinute:
		return 10 * time.Minute
	case market.IntervalWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func roundToTick(price float64) float64 {
	tick := 0.01
	if price < 1.00 {
		tick = 0.0001
	}
	return math.Round(price/tick) * tick
}
