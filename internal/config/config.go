package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"dcabot/internal/scheduler"
	"dcabot/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	PriceSourceYahoo  = "yahoo"
	PriceSourceAlpaca = "alpaca"

	envPrefix = "DCA"
)

type Config struct {
	Symbol             string        `mapstructure:"symbol"`
	StatePath          string        `mapstructure:"state_path"`
	DecisionsPath      string        `mapstructure:"decisions_path"`
	PriceSource        string        `mapstructure:"price_source"`
	Feed               string        `mapstructure:"feed"`
	YahooBaseURL       string        `mapstructure:"yahoo_base_url"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	HTTPRetries        int           `mapstructure:"http_retries"`
	FundingAmount      float64       `mapstructure:"funding_amount"`
	FundingStartMonth  int           `mapstructure:"funding_start_month"`
	SellThreshold      float64       `mapstructure:"sell_threshold"`
	BuyThreshold       float64       `mapstructure:"buy_threshold"`
	BaseBuyAmount      float64       `mapstructure:"base_buy_amount"`
	SeedValuationRatio float64       `mapstructure:"seed_valuation_ratio"`
	Timezone           string        `mapstructure:"timezone"`
	Once               bool          `mapstructure:"once"`
	Schedule           string        `mapstructure:"schedule"`
	RunOnStart         bool          `mapstructure:"run_on_start"`
	DryRun             bool          `mapstructure:"dry_run"`
	Show               bool          `mapstructure:"show"`
	LogLevel           string        `mapstructure:"log_level"`
	LogPretty          bool          `mapstructure:"log_pretty"`
	LogFile            string        `mapstructure:"log_file"`
	APIKey             string        `mapstructure:"alpaca_api_key"`
	APISecret          string        `mapstructure:"alpaca_api_secret"`
}

var defaults = map[string]any{
	"symbol":               "QQQ",
	"state_path":           "portfolio_status.json",
	"decisions_path":       "decisions.ndjson",
	"price_source":         PriceSourceYahoo,
	"feed":                 "iex",
	"yahoo_base_url":       "https://query1.finance.yahoo.com",
	"http_timeout":         30 * time.Second,
	"http_retries":         0,
	"funding_amount":       10000.0,
	"funding_start_month":  2,
	"sell_threshold":       38.0,
	"buy_threshold":        34.0,
	"base_buy_amount":      200.0,
	"seed_valuation_ratio": 35.0,
	"timezone":             "Local",
	"once":                 true,
	"schedule":             "",
	"run_on_start":         false,
	"dry_run":              false,
	"show":                 false,
	"log_level":            "info",
	"log_pretty":           true,
	"log_file":             "",
	"alpaca_api_key":       "",
	"alpaca_api_secret":    "",
}

// Load resolves configuration from, lowest to highest precedence:
// defaults, the --config file, .env and the environment (DCA_*), and
// flags set explicitly on the command line.
func Load(args []string) (Config, error) {
	loadDotEnvIfPresent(".env")

	fs := flag.NewFlagSet("dcabot", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a yaml, json or toml config file")
	fs.String("symbol", "QQQ", "instrument symbol")
	fs.String("state-path", "portfolio_status.json", "portfolio document: file path or s3://bucket/key")
	fs.String("decisions-path", "decisions.ndjson", "decision journal path, empty to disable")
	fs.String("price-source", PriceSourceYahoo, "price source: yahoo or alpaca")
	fs.String("feed", "iex", "alpaca data feed: iex or sip")
	fs.String("yahoo-base-url", "https://query1.finance.yahoo.com", "yahoo finance base URL")
	fs.Duration("http-timeout", 30*time.Second, "market data request timeout")
	fs.Int("http-retries", 0, "market data request retries")
	fs.Float64("funding-amount", 10000, "annual funding amount")
	fs.Int("funding-start-month", 2, "first month (1-12) the annual funding may fire")
	fs.Float64("sell-threshold", 38, "liquidate when the valuation ratio is at or above this")
	fs.Float64("buy-threshold", 34, "accumulate when the valuation ratio is at or below this")
	fs.Float64("base-buy-amount", 200, "cash spent per accumulation")
	fs.Float64("seed-valuation-ratio", 35, "last_pe of a fresh portfolio")
	fs.String("timezone", "Local", "IANA timezone used to decide today's date")
	fs.Bool("once", true, "run once and exit; false runs on --schedule")
	fs.String("schedule", "", "cron schedule for daemon mode, e.g. @daily or 0 30 21 * * MON-FRI")
	fs.Bool("run-on-start", false, "in daemon mode, run once immediately before the first scheduled tick")
	fs.Bool("dry-run", false, "compute the run but do not save the portfolio")
	fs.Bool("show", false, "print the stored portfolio and exit")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.Bool("log-pretty", true, "human readable console output")
	fs.String("log-file", "", "also write logs to this rotating file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("alpaca_api_key", "APCA_API_KEY_ID")
	_ = v.BindEnv("alpaca_api_secret", "APCA_API_SECRET_KEY")

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file failed (%s): %w", *configPath, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			return
		}
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return Config{}, fmt.Errorf("parsing config failed: %w", err)
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadDotEnvIfPresent(path string) {
	// godotenv never overrides variables already set in the environment.
	_ = godotenv.Load(path)
}

func validate(cfg Config) error {
	var errs []error
	if cfg.Symbol == "" {
		errs = append(errs, fmt.Errorf("symbol is required"))
	}
	if cfg.StatePath == "" {
		errs = append(errs, fmt.Errorf("state-path is required"))
	}
	switch cfg.PriceSource {
	case PriceSourceYahoo:
	case PriceSourceAlpaca:
		if cfg.APIKey == "" || cfg.APISecret == "" {
			errs = append(errs, fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required with price-source=alpaca"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid price-source: %s", cfg.PriceSource))
	}
	if cfg.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http-timeout must be > 0"))
	}
	if cfg.HTTPRetries < 0 {
		errs = append(errs, fmt.Errorf("http-retries must be >= 0"))
	}
	if cfg.SeedValuationRatio <= 0 {
		errs = append(errs, fmt.Errorf("seed-valuation-ratio must be > 0"))
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err))
	}
	if !cfg.Once {
		if cfg.Schedule == "" {
			errs = append(errs, fmt.Errorf("schedule is required when once=false"))
		} else if _, err := scheduler.ParseSchedule(cfg.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err))
		}
	}
	if err := cfg.Rules().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) Rules() strategy.Rules {
	return strategy.Rules{
		FundingAmount:     decimal.NewFromFloat(c.FundingAmount),
		FundingStartMonth: time.Month(c.FundingStartMonth),
		SellThreshold:     decimal.NewFromFloat(c.SellThreshold),
		BuyThreshold:      decimal.NewFromFloat(c.BuyThreshold),
		BaseBuyAmount:     decimal.NewFromFloat(c.BaseBuyAmount),
	}
}

func (c Config) SeedPE() decimal.Decimal {
	return decimal.NewFromFloat(c.SeedValuationRatio)
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
