package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"quantico/internal/market"
)

// RESTConfig holds configuration for the brokerage REST client.
type RESTConfig struct {
	BaseURL            string
	Token              string
	RateLimitPerMinute int
	TimeoutSeconds     int
}

// REST is the brokerage API wrapper: it implements both
// market.MarketDataSource and market.OrderGateway over the broker's JSON
// REST API. Prices arrive as decimal strings and are parsed exactly before
// conversion, rather than trusting float formatting on the wire.
type REST struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func NewREST(cfg RESTConfig) (*REST, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("broker base URL is required")
	}
	if cfg.Token == "" {
		return nil, NewAuthError("missing API token", nil)
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &REST{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
	}, nil
}

var _ market.MarketDataSource = (*REST)(nil)
var _ market.OrderGateway = (*REST)(nil)

type quotePayload struct {
	Symbol   string `json:"symbol"`
	AskPrice string `json:"ask_price"`
}

func (r *REST) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, NewBadSymbolError(symbol, "empty symbol")
	}
	var payload quotePayload
	if err := r.get(ctx, "/quotes/"+url.PathEscape(symbol)+"/", nil, &payload); err != nil {
		return 0, err
	}
	price, err := parsePrice(payload.AskPrice)
	if err != nil {
		return 0, NewProviderError(symbol, "unparseable ask price", err)
	}
	return price, nil
}

type historicalsPayload struct {
	Symbol      string `json:"symbol"`
	Historicals []struct {
		BeginsAt   string `json:"begins_at"`
		OpenPrice  string `json:"open_price"`
		ClosePrice string `json:"close_price"`
		HighPrice  string `json:"high_price"`
		LowPrice   string `json:"low_price"`
	} `json:"historicals"`
}

func (r *REST) History(ctx context.Context, symbol string, interval market.Interval, span market.Span, bounds market.Bounds) ([]market.PriceSample, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	q := url.Values{
		"interval": {string(interval)},
		"span":     {string(span)},
		"bounds":   {string(bounds)},
	}
	var payload historicalsPayload
	if err := r.get(ctx, "/quotes/"+url.PathEscape(symbol)+"/historicals/", q, &payload); err != nil {
		return nil, err
	}
	samples := make([]market.PriceSample, 0, len(payload.Historicals))
	for _, h := range payload.Historicals {
		ts, err := time.Parse(time.RFC3339, h.BeginsAt)
		if err != nil {
			return nil, NewProviderError(symbol, "unparseable bar timestamp", err)
		}
		bar := market.PriceSample{Timestamp: float64(ts.Unix())}
		for _, f := range []struct {
			raw string
			dst *float64
		}{
			{h.OpenPrice, &bar.Open},
			{h.ClosePrice, &bar.Close},
			{h.HighPrice, &bar.High},
			{h.LowPrice, &bar.Low},
		} {
			v, err := parsePrice(f.raw)
			if err != nil {
				return nil, NewProviderError(symbol, "unparseable bar price", err)
			}
			*f.dst = v
		}
		samples = append(samples, bar)
	}
	return samples, nil
}

type fundamentalsPayload struct {
	Results []struct {
		Symbol string `json:"symbol"`
		Low    string `json:"low"`
		High   string `json:"high"`
	} `json:"results"`
}

func (r *REST) FundamentalsByCriteria(ctx context.Context, low, high float64, tags []market.Tag) ([]market.Fundamental, error) {
	q := url.Values{
		"price_low":  {decimal.NewFromFloat(low).String()},
		"price_high": {decimal.NewFromFloat(high).String()},
	}
	for _, tag := range tags {
		q.Add("tag", string(tag))
	}
	var payload fundamentalsPayload
	if err := r.get(ctx, "/fundamentals/", q, &payload); err != nil {
		return nil, err
	}
	out := make([]market.Fundamental, 0, len(payload.Results))
	for _, res := range payload.Results {
		f := market.Fundamental{Symbol: res.Symbol}
		if v, err := parsePrice(res.Low); err == nil {
			f.Low = v
		}
		if v, err := parsePrice(res.High); err == nil {
			f.High = v
		}
		out = append(out, f)
	}
	return out, nil
}

type orderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	Stop        *string `json:"stop_price,omitempty"`
	Limit       *string `json:"limit_price,omitempty"`
	TimeInForce string  `json:"time_in_force"`
}

type orderResponse struct {
	ID string `json:"id"`
}

func (r *REST) PlaceBuy(ctx context.Context, symbol string, quantity float64, stop, limit *float64) (string, error) {
	return r.placeOrder(ctx, symbol, market.SideBuy, quantity, stop, limit)
}

func (r *REST) PlaceSell(ctx context.Context, symbol string, quantity float64, stop, limit *float64) (string, error) {
	return r.placeOrder(ctx, symbol, market.SideSell, quantity, stop, limit)
}

func (r *REST) placeOrder(ctx context.Context, symbol string, side market.Side, quantity float64, stop, limit *float64) (string, error) {
	req := orderRequest{
		Symbol:      strings.ToUpper(strings.TrimSpace(symbol)),
		Side:        string(side),
		Quantity:    quantity,
		TimeInForce: "gtc",
	}
	if stop != nil {
		s := decimal.NewFromFloat(*stop).StringFixed(2)
		req.Stop = &s
	}
	if limit != nil {
		s := decimal.NewFromFloat(*limit).StringFixed(2)
		req.Limit = &s
	}
	var resp orderResponse
	if err := r.post(ctx, "/orders/", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *REST) Cancel(ctx context.Context, orderID string) error {
	return r.post(ctx, "/orders/"+url.PathEscape(orderID)+"/cancel/", nil, nil)
}

type cancelAllPayload struct {
	Cancelled []string `json:"cancelled"`
}

func (r *REST) CancelAllOpen(ctx context.Context) ([]string, error) {
	var payload cancelAllPayload
	if err := r.post(ctx, "/orders/cancel_all/", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Cancelled, nil
}

type ordersPayload struct {
	Results []struct {
		ID                string  `json:"id"`
		Symbol            string  `json:"symbol"`
		Side              string  `json:"side"`
		Quantity          float64 `json:"quantity"`
		AveragePrice      string  `json:"average_price"`
		LastTransactionAt string  `json:"last_transaction_at"`
	} `json:"results"`
}

func (r *REST) OrdersToday(ctx context.Context) ([]market.OrderRecord, error) {
	var payload ordersPayload
	if err := r.get(ctx, "/orders/", nil, &payload); err != nil {
		return nil, err
	}
	out := make([]market.OrderRecord, 0, len(payload.Results))
	for _, res := range payload.Results {
		rec := market.OrderRecord{
			ID:       res.ID,
			Symbol:   res.Symbol,
			Side:     market.Side(res.Side),
			Quantity: res.Quantity,
		}
		if ts, err := time.Parse(time.RFC3339, res.LastTransactionAt); err == nil {
			rec.TransactedAt = ts
		}
		if v, err := parsePrice(res.AveragePrice); err == nil {
			rec.Price = v
		}
		out = append(out, rec)
	}
	return out, nil
}

type accountPayload struct {
	BuyingPower string `json:"buying_power"`
}

func (r *REST) BuyingPower(ctx context.Context) (float64, error) {
	var payload accountPayload
	if err := r.get(ctx, "/accounts/", nil, &payload); err != nil {
		return 0, err
	}
	v, err := parsePrice(payload.BuyingPower)
	if err != nil {
		return 0, NewProviderError("", "unparseable buying power", err)
	}
	return v, nil
}

func (r *REST) get(ctx context.Context, path string, query url.Values, out any) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return NewNetworkError("", "build request", err)
	}
	return r.do(req, out)
}

func (r *REST) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return NewProviderError("", "encode request", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, reader)
	if err != nil {
		return NewNetworkError("", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, out)
}

func (r *REST) do(req *http.Request, out any) error {
	if err := r.rateLimiter.Wait(req.Context()); err != nil {
		return NewRateLimitError("", "rate limiter wait cancelled")
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewAuthError(fmt.Sprintf("broker returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewRateLimitError("", "broker rate limit exceeded")
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewProviderError("", fmt.Sprintf("broker returned %d: %s", resp.StatusCode, string(raw)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewProviderError("", "decode response", err)
	}
	return nil
}

// parsePrice parses a decimal price string exactly, then converts to float64
// once, at the boundary.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
