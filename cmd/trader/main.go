package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantico/internal/broker"
	"quantico/internal/calendar"
	"quantico/internal/config"
	"quantico/internal/engine"
	"quantico/internal/market"
	"quantico/internal/observ"
	"quantico/internal/portfolio"
	"quantico/internal/strategy"
)

func main() {
	var cfgPath string
	var strategyName string
	var backtest bool
	var cash float64
	var debug bool
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&strategyName, "strategy", "", "strategy name (overrides config)")
	flag.BoolVar(&backtest, "backtest", false, "replay historical data instead of trading live")
	flag.Float64Var(&cash, "cash", 0, "backtest starting cash (overrides config)")
	flag.BoolVar(&debug, "debug", false, "log orders instead of sending them")
	flag.Parse()

	// Credentials come from .env; absence is fine when a .env file is not used.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: load .env: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v (did you copy config.example.yaml?)", err)
	}
	if strategyName != "" {
		cfg.Trading.Strategy = strategyName
	}
	if cash > 0 {
		cfg.Backtest.Cash = cash
	}
	if debug {
		cfg.Trading.Debug = true
	}
	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}

	data, gateway, err := buildBroker(cfg)
	if err != nil {
		log.Fatalf("init broker: %v", err)
	}

	book := portfolio.NewBook(nil)
	for _, sym := range cfg.Symbols {
		book.AddPosition(sym, 0)
	}

	strat, err := strategy.New(cfg.Trading.Strategy, strategy.Options{AgeFilePath: cfg.AgeFilePath})
	if err != nil {
		log.Fatalf("init strategy: %v", err)
	}

	mode := engine.Live
	if backtest {
		mode = engine.Backtest
	}
	cal, err := calendar.NewNYSE()
	if err != nil {
		log.Fatalf("init calendar: %v", err)
	}
	eng, err := engine.New(engine.Config{
		Data:            data,
		Gateway:         gateway,
		Book:            book,
		Calendar:        cal,
		Name:            cfg.Trading.Strategy,
		Interval:        time.Duration(cfg.Trading.IntervalSeconds) * time.Second,
		BuyLow:          cfg.Trading.BuyLow,
		BuyHigh:         cfg.Trading.BuyHigh,
		Mode:            mode,
		Cash:            cfg.Backtest.Cash,
		Debug:           cfg.Trading.Debug,
		HistoryInterval: market.Interval(cfg.Backtest.Interval),
		HistorySpan:     market.Span(cfg.Backtest.Span),
	}, strat)
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	observ.Log("startup", map[string]any{
		"strategy":    cfg.Trading.Strategy,
		"mode":        mode.String(),
		"data_source": cfg.DataSource,
		"symbols":     cfg.Symbols,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("run: %v", err)
	}

	if rep := eng.Report(); rep != nil {
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			log.Fatalf("marshal report: %v", err)
		}
		fmt.Println(string(out))
	}
}

func buildBroker(cfg config.Root) (market.MarketDataSource, market.OrderGateway, error) {
	switch cfg.DataSource {
	case "sim":
		sim := broker.NewSim(cfg.Backtest.Seed, cfg.Backtest.Cash)
		return sim, sim, nil
	case "rest":
		rest, err := broker.NewREST(broker.RESTConfig{
			BaseURL:            cfg.Broker.BaseURL,
			Token:              os.Getenv("BROKER_TOKEN"),
			RateLimitPerMinute: cfg.Broker.RateLimitPerMinute,
			TimeoutSeconds:     cfg.Broker.TimeoutSeconds,
		})
		if err != nil {
			return nil, nil, err
		}
		return rest, rest, nil
	default:
		return nil, nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}
