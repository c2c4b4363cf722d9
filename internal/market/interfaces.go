package market

import "context"

// MarketDataSource is the quote and history capability the engine consumes.
// Implementations live in the broker package; the engine never constructs one.
type MarketDataSource interface {
	// CurrentPrice returns the current ask price for a symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// History returns bars oldest to newest. The slice is finite and not
	// restartable; a fresh call re-fetches.
	History(ctx context.Context, symbol string, interval Interval, span Span, bounds Bounds) ([]PriceSample, error)

	// FundamentalsByCriteria screens for symbols whose price falls inside
	// [low, high], optionally restricted to the given tags.
	FundamentalsByCriteria(ctx context.Context, low, high float64, tags []Tag) ([]Fundamental, error)
}

// OrderGateway is the order-execution capability the engine consumes.
type OrderGateway interface {
	// PlaceBuy submits a buy order. Stop and limit are optional; nil means
	// a market order on that dimension.
	PlaceBuy(ctx context.Context, symbol string, quantity float64, stop, limit *float64) (string, error)

	// PlaceSell submits a sell order.
	PlaceSell(ctx context.Context, symbol string, quantity float64, stop, limit *float64) (string, error)

	// Cancel cancels a single order by ID.
	Cancel(ctx context.Context, orderID string) error

	// CancelAllOpen cancels every open order and returns the cancelled IDs.
	CancelAllOpen(ctx context.Context) ([]string, error)

	// OrdersToday returns the account's order history. Callers filter by
	// transaction date.
	OrdersToday(ctx context.Context) ([]OrderRecord, error)

	// BuyingPower returns the account's available cash.
	BuyingPower(ctx context.Context) (float64, error)
}
