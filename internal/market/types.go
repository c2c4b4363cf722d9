package market

import "time"

// PriceSample is one bar of historical price data. Immutable once created.
type PriceSample struct {
	Timestamp float64 `json:"timestamp"` // epoch seconds
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
}

// Time converts the epoch-seconds timestamp back to a time.Time.
func (p PriceSample) Time() time.Time {
	sec := int64(p.Timestamp)
	nsec := int64((p.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Snapshot is a per-phase view of account cash and ask prices. In live mode
// the engine builds one from gateway calls; in backtest mode the scheduler
// injects one synthesized from historical bars.
type Snapshot struct {
	Cash   float64
	Prices map[string]float64
}

// Side distinguishes buy and sell order records.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRecord is one executed or pending order as reported by the gateway.
type OrderRecord struct {
	ID           string
	Symbol       string
	Side         Side
	TransactedAt time.Time
	Quantity     float64
	Price        float64
}

// Fundamental is a screening result row from the data source.
type Fundamental struct {
	Symbol string
	Low    float64
	High   float64
}

// Interval is the spacing between historical bars.
type Interval string

const (
	IntervalFiveMinute Interval = "5minute"
	IntervalTenMinute  Interval = "10minute"
	IntervalDay        Interval = "day"
	IntervalWeek       Interval = "week"
)

// Span is the total range a history request covers.
type Span string

const (
	SpanDay  Span = "day"
	SpanWeek Span = "week"
	SpanYear Span = "year"
)

// Bounds selects regular or extended trading hours for history requests.
type Bounds string

const (
	BoundsRegular  Bounds = "regular"
	BoundsExtended Bounds = "extended"
)

// Tag is a brokerage screening category.
type Tag string

const (
	TagTopMovers         Tag = "top-movers"
	TagETF               Tag = "etf"
	TagMostPopular       Tag = "100-most-popular"
	TagMutualFund        Tag = "mutual-fund"
	TagFinance           Tag = "finance"
	TagCapWeighted       Tag = "cap-weighted"
	TagInvestmentOrTrust Tag = "investment-trust-or-fund"
)
