package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Broker struct {
	BaseURL            string `yaml:"base_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

type Trading struct {
	Strategy        string  `yaml:"strategy"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	BuyLow          float64 `yaml:"buy_low"`
	BuyHigh         float64 `yaml:"buy_high"`
	Debug           bool    `yaml:"debug"` // log orders instead of sending them
}

type Backtest struct {
	Cash     float64 `yaml:"cash"`
	Interval string  `yaml:"interval"` // bar spacing, e.g. 10minute
	Span     string  `yaml:"span"`     // total range, e.g. year
	Seed     int64   `yaml:"seed"`     // sim data source seed
}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

type Root struct {
	DataSource  string   `yaml:"data_source"` // sim | rest
	AgeFilePath string   `yaml:"age_file_path"`
	Symbols     []string `yaml:"symbols"`
	Broker      Broker   `yaml:"broker"`
	Trading     Trading  `yaml:"trading"`
	Backtest    Backtest `yaml:"backtest"`
	Server      Server   `yaml:"server"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}

	if c.DataSource == "" {
		c.DataSource = "sim"
	}
	if c.AgeFilePath == "" {
		c.AgeFilePath = "data/ages.txt"
	}

	if c.Trading.Strategy == "" {
		c.Trading.Strategy = "top_movers"
	}
	if c.Trading.IntervalSeconds == 0 {
		c.Trading.IntervalSeconds = 900
	}
	if c.Trading.BuyHigh == 0 {
		c.Trading.BuyHigh = 40
	}

	if c.Backtest.Cash == 0 {
		c.Backtest.Cash = 1000
	}
	if c.Backtest.Interval == "" {
		c.Backtest.Interval = "10minute"
	}
	if c.Backtest.Span == "" {
		c.Backtest.Span = "week"
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}

	if c.Broker.RateLimitPerMinute == 0 {
		c.Broker.RateLimitPerMinute = 60
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 15
	}

	if c.Trading.BuyLow < 0 || c.Trading.BuyHigh < c.Trading.BuyLow {
		return c, fmt.Errorf("invalid buy range [%.2f, %.2f]", c.Trading.BuyLow, c.Trading.BuyHigh)
	}
	return c, nil
}
