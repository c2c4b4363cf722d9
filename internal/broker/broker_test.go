package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantico/internal/market"
)

func newTestREST(t *testing.T, handler http.Handler) *REST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r, err := NewREST(RESTConfig{BaseURL: srv.URL, Token: "test-token", RateLimitPerMinute: 6000})
	require.NoError(t, err)
	return r
}

func TestRESTCurrentPriceParsesDecimalString(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
		assert.Equal(t, "/quotes/AAPL/", req.URL.Path)
		w.Write([]byte(`{"symbol":"AAPL","ask_price":"206.800000"}`))
	}))

	price, err := r.CurrentPrice(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, 206.80, price)
}

func TestRESTHistory(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "10minute", req.URL.Query().Get("interval"))
		assert.Equal(t, "year", req.URL.Query().Get("span"))
		w.Write([]byte(`{"symbol":"NVDA","historicals":[
			{"begins_at":"2026-01-02T14:30:00Z","open_price":"450.00","close_price":"451.25","high_price":"452.00","low_price":"449.10"}
		]}`))
	}))

	bars, err := r.History(context.Background(), "NVDA", market.IntervalTenMinute, market.SpanYear, market.BoundsRegular)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 451.25, bars[0].Close)
	assert.Equal(t, 449.10, bars[0].Low)
	want := time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, want, bars[0].Time())
}

func TestRESTAuthError(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := r.BuyingPower(context.Background())
	require.Error(t, err)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "auth", ce.Type)
}

func TestRESTPlaceBuyFormatsPrices(t *testing.T) {
	var gotBody map[string]any
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/orders/", req.URL.Path)
		require.NoError(t, jsonDecode(req, &gotBody))
		w.Write([]byte(`{"id":"order-1"}`))
	}))

	limit := 20.5
	id, err := r.PlaceBuy(context.Background(), "zzz", 5, nil, &limit)
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, "ZZZ", gotBody["symbol"])
	assert.Equal(t, "buy", gotBody["side"])
	assert.Equal(t, "20.50", gotBody["limit_price"])
	assert.NotContains(t, gotBody, "stop_price")
}

func TestRESTRequiresToken(t *testing.T) {
	_, err := NewREST(RESTConfig{BaseURL: "http://localhost"})
	require.Error(t, err)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "auth", ce.Type)
}

func TestSimHistoryDeterministicForSeed(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mk := func() *Sim {
		s := NewSim(42, 1000)
		s.SetNow(func() time.Time { return fixed })
		return s
	}

	a, err := mk().History(context.Background(), "AAPL", market.IntervalTenMinute, market.SpanWeek, market.BoundsRegular)
	require.NoError(t, err)
	b, err := mk().History(context.Background(), "AAPL", market.IntervalTenMinute, market.SpanWeek, market.BoundsRegular)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 5*39)
	for _, bar := range a {
		assert.GreaterOrEqual(t, bar.High, bar.Low)
	}
}

func TestSimOrderFlow(t *testing.T) {
	s := NewSim(1, 1000)
	ctx := context.Background()

	limit := 20.0
	id, err := s.PlaceBuy(ctx, "BIOX", 5, nil, &limit)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	bp, err := s.BuyingPower(ctx)
	require.NoError(t, err)
	assert.Equal(t, 900.0, bp)

	orders, err := s.OrdersToday(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, market.SideBuy, orders[0].Side)
	assert.Equal(t, "BIOX", orders[0].Symbol)

	_, err = s.PlaceSell(ctx, "UNKNOWN", 1, nil, nil)
	require.Error(t, err)
}

func jsonDecode(req *http.Request, out any) error {
	defer req.Body.Close()
	return json.NewDecoder(req.Body).Decode(out)
}
