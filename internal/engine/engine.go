package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"quantico/internal/calendar"
	"quantico/internal/market"
	"quantico/internal/observ"
	"quantico/internal/portfolio"
	"quantico/internal/schedule"
)

// Strategy is the extension point plugged into the engine. Handlers run
// synchronously inside phase transitions; everything a strategy does goes
// through the engine's primitives.
type Strategy interface {
	Name() string
	OnMarketWillOpen(e *Engine)
	OnMarketOpen(e *Engine)
	WhileMarketOpen(e *Engine)
	OnMarketClose(e *Engine)
}

// Config wires an engine to its collaborators.
type Config struct {
	Data     market.MarketDataSource
	Gateway  market.OrderGateway
	Book     *portfolio.Book
	Calendar calendar.Source // required in live mode

	Name     string
	Interval time.Duration
	BuyLow   float64
	BuyHigh  float64
	Mode     Mode
	Cash     float64 // starting cash, backtest mode only
	Debug    bool    // log orders instead of sending them

	// GatewayTimeout bounds every call into the data source and gateway so
	// a hung broker cannot stall a phase handler indefinitely.
	GatewayTimeout time.Duration

	// Historical series parameters for backtests.
	HistoryInterval market.Interval
	HistorySpan     market.Span
}

// Engine is the stateful strategy host: it owns cash/position state, the
// day-trade ledger, price resolution, and the buy/sell/cancel safety rules.
// One engine runs one strategy; the position book may be shared across
// engines and is only ever mutated through its own methods.
type Engine struct {
	cfg      Config
	strategy Strategy
	state    State
	ledger   *DayTradeLedger
	hist     *schedule.Historical

	trades []TradeLog
	equity []EquityPoint
	report *Report

	mu   sync.Mutex
	logs []string
}

const maxLogLines = 2000

func New(cfg Config, strategy Strategy) (*Engine, error) {
	if cfg.Data == nil || cfg.Gateway == nil || cfg.Book == nil {
		return nil, fmt.Errorf("engine requires data source, gateway, and position book")
	}
	if cfg.Mode == Live && cfg.Calendar == nil {
		return nil, fmt.Errorf("live mode requires a trading calendar")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 900 * time.Second
	}
	if cfg.BuyHigh <= 0 {
		cfg.BuyHigh = math.MaxFloat64
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	if cfg.HistoryInterval == "" {
		cfg.HistoryInterval = market.IntervalTenMinute
	}
	if cfg.HistorySpan == "" {
		cfg.HistorySpan = market.SpanYear
	}
	if cfg.Name == "" {
		cfg.Name = "Algorithm"
	}
	e := &Engine{
		cfg:      cfg,
		strategy: strategy,
		ledger:   NewDayTradeLedger(),
		state: State{
			Cash:    cfg.Cash,
			Prices:  map[string]float64{},
			Mode:    cfg.Mode,
			BuyLow:  cfg.BuyLow,
			BuyHigh: cfg.BuyHigh,
		},
	}
	e.logf("algorithm_initialized", map[string]any{"name": cfg.Name, "mode": cfg.Mode.String()})
	return e, nil
}

// Run drives the engine until the context is cancelled (live) or the
// historical series is exhausted (backtest).
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.Mode == Backtest {
		return e.runBacktest(ctx)
	}
	sched := schedule.NewLive(e.cfg.Calendar, e.cfg.Interval, schedule.Handlers{
		MarketWillOpen:  func() { e.OnMarketWillOpen(nil) },
		MarketOpen:      func() { e.OnMarketOpen(nil) },
		WhileMarketOpen: func() { e.WhileMarketOpen(nil) },
		MarketClose:     func() { e.OnMarketClose(nil) },
	})
	return sched.Run(ctx)
}

// Phase handlers. A nil snapshot means live mode: cash and prices are
// pulled fresh from the gateway. A non-nil snapshot is a backtest
// injection. This single branch is what lets identical strategy code run
// in both modes.

func (e *Engine) OnMarketWillOpen(snap *market.Snapshot) {
	e.enterPhase(schedule.PhaseWillOpen, snap)
	e.resetLedgerFromOrders()
	if e.strategy != nil {
		e.strategy.OnMarketWillOpen(e)
	}
}

func (e *Engine) OnMarketOpen(snap *market.Snapshot) {
	e.enterPhase(schedule.PhaseOpen, snap)
	if e.strategy != nil {
		e.strategy.OnMarketOpen(e)
	}
}

func (e *Engine) WhileMarketOpen(snap *market.Snapshot) {
	e.enterPhase(schedule.PhaseWhileOpen, snap)
	if e.strategy != nil {
		e.strategy.WhileMarketOpen(e)
	}
}

func (e *Engine) OnMarketClose(snap *market.Snapshot) {
	e.enterPhase(schedule.PhaseClose, snap)
	if e.strategy != nil {
		e.strategy.OnMarketClose(e)
	}
}

func (e *Engine) enterPhase(p schedule.Phase, snap *market.Snapshot) {
	e.state.Event = p
	if snap != nil {
		e.state.Cash = snap.Cash
		e.state.Prices = snap.Prices
		return
	}
	e.state.Timestamp = float64(time.Now().Unix())
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	if cash, err := e.cfg.Gateway.BuyingPower(ctx); err == nil {
		e.state.Cash = cash
	} else {
		e.logError("buying_power_failed", map[string]any{"err": err.Error()})
	}
	prices := map[string]float64{}
	for _, pos := range e.cfg.Book.Quotes() {
		price, err := e.cfg.Data.CurrentPrice(ctx, pos.Symbol)
		if err != nil {
			e.logError("price_refresh_failed", map[string]any{"symbol": pos.Symbol, "err": err.Error()})
			if prev, ok := e.state.Prices[pos.Symbol]; ok {
				prices[pos.Symbol] = prev
			}
			continue
		}
		prices[pos.Symbol] = price
	}
	e.state.Prices = prices
}

// resetLedgerFromOrders clears the day-trade ledger and rebuilds it from
// the orders the account already executed today, so a restart mid-day
// cannot forget a morning trade.
func (e *Engine) resetLedgerFromOrders() {
	e.ledger.Reset()
	if e.cfg.Mode == Backtest {
		return
	}
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	orders, err := e.cfg.Gateway.OrdersToday(ctx)
	if err != nil {
		e.logError("orders_today_failed", map[string]any{"err": err.Error()})
		return
	}
	today := time.Now()
	for _, o := range orders {
		if !sameDay(o.TransactedAt, today) {
			continue
		}
		switch o.Side {
		case market.SideBuy:
			e.ledger.MarkBought(o.Symbol)
		case market.SideSell:
			e.ledger.MarkSold(o.Symbol)
		}
	}
	e.logf("day_trade_ledger_rebuilt", map[string]any{
		"bought": e.ledger.Bought(),
		"sold":   e.ledger.Sold(),
	})
}

// Buy validates and executes a buy order. Every failure is absorbed: the
// cause is logged and false is returned, nothing propagates to the phase
// handler.
func (e *Engine) Buy(symbol string, quantity float64, stop, limit *float64) bool {
	price, ok := e.resolveOrderPrice(symbol, stop, limit)
	if !ok {
		e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "no resolvable price"})
		return false
	}
	switch {
	case price > e.state.BuyHigh:
		e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "stock too expensive", "price": price})
		return false
	case price < e.state.BuyLow:
		e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "stock too cheap", "price": price})
		return false
	case e.ledger.SoldToday(symbol):
		e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "stock already sold today"})
		return false
	case e.ledger.BoughtToday(symbol):
		e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "stock already bought today"})
		return false
	}
	cost := price * quantity
	if e.cfg.Mode == Backtest && cost > e.state.Cash {
		e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "insufficient cash", "cost": cost, "cash": e.state.Cash})
		return false
	}

	if e.cfg.Mode == Backtest || e.cfg.Debug {
		e.logf("buy_simulated", map[string]any{"symbol": symbol, "quantity": quantity, "price": price})
	} else {
		ctx, cancel := e.gatewayCtx()
		defer cancel()
		if _, err := e.cfg.Gateway.PlaceBuy(ctx, symbol, quantity, stop, limit); err != nil {
			e.logError("buy_refused", map[string]any{"symbol": symbol, "reason": "client error", "err": err.Error()})
			return false
		}
		e.logf("buy_placed", map[string]any{"symbol": symbol, "quantity": quantity, "price": price})
	}

	e.ledger.MarkBought(symbol)
	if e.cfg.Mode == Backtest {
		e.state.Cash -= cost
	}
	e.cfg.Book.AddPosition(symbol, quantity)
	e.trades = append(e.trades, TradeLog{Timestamp: e.state.Timestamp, Symbol: symbol, Side: market.SideBuy, Quantity: quantity, Price: price})
	observ.IncCounter("engine_buys_total", map[string]string{"algorithm": e.cfg.Name})
	return true
}

// Sell validates and executes a sell order, the mirror of Buy. The
// boughtToday check is the day-trade-prevention invariant.
func (e *Engine) Sell(symbol string, quantity float64, stop, limit *float64) bool {
	price, ok := e.resolveOrderPrice(symbol, stop, limit)
	if !ok {
		e.logError("sell_refused", map[string]any{"symbol": symbol, "reason": "no resolvable price"})
		return false
	}
	switch {
	case e.ledger.BoughtToday(symbol):
		e.logError("sell_refused", map[string]any{"symbol": symbol, "reason": "stock already bought today"})
		return false
	case e.ledger.SoldToday(symbol):
		e.logError("sell_refused", map[string]any{"symbol": symbol, "reason": "stock already sold today"})
		return false
	}

	if e.cfg.Mode == Backtest || e.cfg.Debug {
		e.logf("sell_simulated", map[string]any{"symbol": symbol, "quantity": quantity, "price": price})
	} else {
		ctx, cancel := e.gatewayCtx()
		defer cancel()
		if _, err := e.cfg.Gateway.PlaceSell(ctx, symbol, quantity, stop, limit); err != nil {
			e.logError("sell_refused", map[string]any{"symbol": symbol, "reason": "client error", "err": err.Error()})
			return false
		}
		e.logf("sell_placed", map[string]any{"symbol": symbol, "quantity": quantity, "price": price})
	}

	e.ledger.MarkSold(symbol)
	if e.cfg.Mode == Backtest {
		e.state.Cash += price * quantity
	}
	e.cfg.Book.RemovePosition(symbol, quantity)
	e.trades = append(e.trades, TradeLog{Timestamp: e.state.Timestamp, Symbol: symbol, Side: market.SideSell, Quantity: quantity, Price: price})
	observ.IncCounter("engine_sells_total", map[string]string{"algorithm": e.cfg.Name})
	return true
}

// Cancel cancels one order by ID. Backtests have no open orders, so the
// call is a logged no-op there.
func (e *Engine) Cancel(orderID string) bool {
	if e.cfg.Mode == Backtest || e.cfg.Debug {
		e.logf("cancel_simulated", map[string]any{"order_id": orderID})
		return true
	}
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	if err := e.cfg.Gateway.Cancel(ctx, orderID); err != nil {
		e.logError("cancel_failed", map[string]any{"order_id": orderID, "err": err.Error()})
		return false
	}
	e.logf("order_cancelled", map[string]any{"order_id": orderID})
	return true
}

// CancelOpenOrders cancels everything open and returns the cancelled IDs.
func (e *Engine) CancelOpenOrders() []string {
	if e.cfg.Mode == Backtest || e.cfg.Debug {
		e.logf("cancel_open_orders_simulated", nil)
		return nil
	}
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	ids, err := e.cfg.Gateway.CancelAllOpen(ctx)
	if err != nil {
		e.logError("cancel_open_orders_failed", map[string]any{"err": err.Error()})
		return nil
	}
	e.logf("open_orders_cancelled", map[string]any{"order_ids": ids})
	return ids
}

// Price resolves the current ask price for a symbol. Backtests select a
// field of the current bar by phase — low while the market is open (the
// pessimistic intraday fill), close at the bell, open otherwise — so
// intraday fills stay economically plausible. Live mode asks the data
// source.
func (e *Engine) Price(symbol string) float64 {
	if e.cfg.Mode == Backtest {
		if e.hist != nil {
			if bar, ok := e.hist.SampleAt(symbol, e.state.Timestamp); ok {
				switch e.state.Event {
				case schedule.PhaseWhileOpen:
					return bar.Low
				case schedule.PhaseClose:
					return bar.Close
				default:
					return bar.Open
				}
			}
		}
		return e.state.Prices[symbol]
	}
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	price, err := e.cfg.Data.CurrentPrice(ctx, symbol)
	if err != nil {
		e.logError("price_lookup_failed", map[string]any{"symbol": symbol, "err": err.Error()})
		return e.state.Prices[symbol]
	}
	return price
}

// Value returns the current market value of all held positions.
func (e *Engine) Value() float64 {
	total := 0.0
	for _, pos := range e.cfg.Book.Quotes() {
		total += e.Price(pos.Symbol) * pos.Count
	}
	return total
}

// History returns bars for a symbol, excluding the current backtest bar so
// rolling statistics cannot peek at the price being traded on.
func (e *Engine) History(symbol string) ([]market.PriceSample, error) {
	if e.cfg.Mode == Backtest && e.hist != nil {
		var out []market.PriceSample
		for _, ts := range e.hist.Timestamps {
			if ts >= e.state.Timestamp {
				break
			}
			if bar, ok := e.hist.SampleAt(symbol, ts); ok {
				out = append(out, bar)
			}
		}
		return out, nil
	}
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	return e.cfg.Data.History(ctx, symbol, e.cfg.HistoryInterval, e.cfg.HistorySpan, market.BoundsRegular)
}

// Fundamentals screens for candidate symbols inside the engine's buy range.
func (e *Engine) Fundamentals(tags []market.Tag) ([]market.Fundamental, error) {
	ctx, cancel := e.gatewayCtx()
	defer cancel()
	return e.cfg.Data.FundamentalsByCriteria(ctx, e.cfg.BuyLow, e.cfg.BuyHigh, tags)
}

func (e *Engine) Cash() float64                { return e.state.Cash }
func (e *Engine) Book() *portfolio.Book        { return e.cfg.Book }
func (e *Engine) Name() string                 { return e.cfg.Name }
func (e *Engine) Mode() Mode                   { return e.cfg.Mode }
func (e *Engine) Timestamp() float64           { return e.state.Timestamp }
func (e *Engine) Phase() schedule.Phase        { return e.state.Event }
func (e *Engine) BuyRange() (float64, float64) { return e.state.BuyLow, e.state.BuyHigh }
func (e *Engine) Ledger() *DayTradeLedger      { return e.ledger }

// Logs returns the last n buffered log lines (all of them when n <= 0).
func (e *Engine) Logs(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.logs) {
		n = len(e.logs)
	}
	out := make([]string, n)
	copy(out, e.logs[len(e.logs)-n:])
	return out
}

// resolveOrderPrice picks limit over stop, falling back to the current
// quote for market orders.
func (e *Engine) resolveOrderPrice(symbol string, stop, limit *float64) (float64, bool) {
	switch {
	case limit != nil:
		return *limit, true
	case stop != nil:
		return *stop, true
	}
	price := e.Price(symbol)
	return price, price > 0
}

func (e *Engine) gatewayCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.GatewayTimeout)
}

func (e *Engine) logf(event string, kv map[string]any) {
	e.buffer("log", event, kv)
	if kv == nil {
		kv = map[string]any{}
	}
	kv["algorithm"] = e.cfg.Name
	observ.Log(event, kv)
}

func (e *Engine) logError(event string, kv map[string]any) {
	e.buffer("error", event, kv)
	if kv == nil {
		kv = map[string]any{}
	}
	kv["algorithm"] = e.cfg.Name
	observ.Error(event, kv)
}

func (e *Engine) buffer(level, event string, kv map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	line := fmt.Sprintf("%s %s %s %v", time.Now().UTC().Format(time.RFC3339), level, event, kv)
	e.logs = append(e.logs, line)
	if len(e.logs) > maxLogLines {
		e.logs = e.logs[len(e.logs)-maxLogLines:]
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
