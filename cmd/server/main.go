package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"quantico/internal/broker"
	"quantico/internal/calendar"
	"quantico/internal/config"
	"quantico/internal/engine"
	"quantico/internal/market"
	"quantico/internal/observ"
	"quantico/internal/portfolio"
	"quantico/internal/server"
	"quantico/internal/strategy"
)

func main() {
	var cfgPath string
	var addr string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: load .env: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v (did you copy config.example.yaml?)", err)
	}
	if addr != "" {
		cfg.Server.ListenAddr = addr
	}

	username := cfg.Server.Username
	password := cfg.Server.Password
	if v := os.Getenv("CONTROL_USERNAME"); v != "" {
		username = v
	}
	if v := os.Getenv("CONTROL_PASSWORD"); v != "" {
		password = v
	}
	if username == "" || password == "" {
		log.Fatal("control server credentials are required (config or CONTROL_USERNAME/CONTROL_PASSWORD)")
	}

	build := func(name string) (*engine.Engine, error) {
		strat, err := strategy.New(name, strategy.Options{AgeFilePath: cfg.AgeFilePath})
		if err != nil {
			return nil, err
		}
		data, gateway, err := buildBroker(cfg)
		if err != nil {
			return nil, err
		}
		cal, err := calendar.NewNYSE()
		if err != nil {
			return nil, err
		}
		book := portfolio.NewBook(nil)
		for _, sym := range cfg.Symbols {
			book.AddPosition(sym, 0)
		}
		return engine.New(engine.Config{
			Data:            data,
			Gateway:         gateway,
			Book:            book,
			Calendar:        cal,
			Name:            name,
			Interval:        time.Duration(cfg.Trading.IntervalSeconds) * time.Second,
			BuyLow:          cfg.Trading.BuyLow,
			BuyHigh:         cfg.Trading.BuyHigh,
			Mode:            engine.Live,
			Debug:           cfg.Trading.Debug,
			HistoryInterval: market.Interval(cfg.Backtest.Interval),
			HistorySpan:     market.Span(cfg.Backtest.Span),
		}, strat)
	}

	observ.Log("startup", map[string]any{
		"addr":        cfg.Server.ListenAddr,
		"data_source": cfg.DataSource,
		"strategies":  strategy.Names(),
	})

	if err := server.New(build, username, password).Run(cfg.Server.ListenAddr); err != nil {
		log.Fatalf("serve: %v", err)
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
