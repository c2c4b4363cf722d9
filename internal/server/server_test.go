package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"quantico/internal/broker"
	"quantico/internal/engine"
	"quantico/internal/market"
	"quantico/internal/portfolio"
	"quantico/internal/strategy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testBuilder(t *testing.T) Builder {
	t.Helper()
	return func(name string) (*engine.Engine, error) {
		strat, err := strategy.New(name, strategy.Options{AgeFilePath: t.TempDir() + "/ages"})
		if err != nil {
			return nil, err
		}
		sim := broker.NewSim(42, 1000)
		book := portfolio.NewBook(nil)
		book.AddPosition("AAPL", 0)
		return engine.New(engine.Config{
			Data:        sim,
			Gateway:     sim,
			Book:        book,
			Name:        name,
			Mode:        engine.Backtest,
			Cash:        1000,
			BuyHigh:     1e6,
			HistorySpan: market.SpanDay,
		}, strat)
	}
}

func post(t *testing.T, router *gin.Engine, path string, body any, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRejectsMissingCredentials(t *testing.T) {
	router := New(testBuilder(t), "trader", "hunter2").Router()
	w := post(t, router, "/algorithm/run", gin.H{"name": "top_movers"}, "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, router, "/algorithm/run", gin.H{"name": "top_movers"}, "trader", "wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRunUnknownStrategy(t *testing.T) {
	router := New(testBuilder(t), "trader", "hunter2").Router()
	w := post(t, router, "/algorithm/run", gin.H{"name": "nope"}, "trader", "hunter2")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunLogsStopRoundTrip(t *testing.T) {
	router := New(testBuilder(t), "trader", "hunter2").Router()

	w := post(t, router, "/algorithm/run", gin.H{"name": "top_movers"}, "trader", "hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	var started struct {
		AlgorithmName string `json:"algorithm_name"`
		Status        string `json:"status"`
		ProcessID     string `json:"process_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.Equal(t, "top_movers", started.AlgorithmName)
	require.Equal(t, "running", started.Status)
	require.NotEmpty(t, started.ProcessID)

	w = post(t, router, "/algorithm/logs", gin.H{"process_id": started.ProcessID, "last": 5}, "trader", "hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Logs []string `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.NotEmpty(t, logs.Logs)

	w = post(t, router, "/algorithm/stop", gin.H{"process_id": started.ProcessID}, "trader", "hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"stopped"`)

	// A stopped process is forgotten.
	w = post(t, router, "/algorithm/stop", gin.H{"process_id": started.ProcessID}, "trader", "hunter2")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogsUnknownProcess(t *testing.T) {
	router := New(testBuilder(t), "trader", "hunter2").Router()
	w := post(t, router, "/algorithm/logs", gin.H{"process_id": fmt.Sprint(12345)}, "trader", "hunter2")
	require.Equal(t, http.StatusNotFound, w.Code)
}
