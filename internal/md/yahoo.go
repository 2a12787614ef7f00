package md

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"
	chartRange          = "5d"
	userAgent           = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

type YahooOptions struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// Yahoo reads closes from the chart API and trailingPE from the quote API.
type Yahoo struct {
	client *resty.Client
	log    zerolog.Logger
}

func NewYahoo(opts YahooOptions, log zerolog.Logger) *Yahoo {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultYahooBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	return &Yahoo{
		client: client,
		log:    log.With().Str("client", "yahoo").Logger(),
	}
}

// LatestClose returns the most recent non-empty close in a short trailing
// window.
func (y *Yahoo) LatestClose(ctx context.Context, symbol string) (Quote, error) {
	body, err := y.get(ctx, "/v8/finance/chart/{symbol}", map[string]string{
		"interval": "1d",
		"range":    chartRange,
	}, symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch chart for %s: %w", symbol, err)
	}

	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return Quote{}, fmt.Errorf("%w: empty chart for %s", ErrNoPrice, symbol)
	}
	timestamps := result.Get("timestamp").Array()
	closes := result.Get("indicators.quote.0.close").Array()

	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i].Type != gjson.Number {
			continue
		}
		price, err := decimal.NewFromString(closes[i].Raw)
		if err != nil || !price.IsPositive() {
			continue
		}
		q := Quote{Symbol: symbol, Close: price}
		if i < len(timestamps) {
			q.Time = time.Unix(timestamps[i].Int(), 0).UTC()
		}
		y.log.Debug().Str("symbol", symbol).Stringer("close", price).Time("bar_time", q.Time).Msg("close fetched")
		return q, nil
	}
	return Quote{}, fmt.Errorf("%w: no closes for %s in last %s", ErrNoPrice, symbol, chartRange)
}

func (y *Yahoo) TrailingPE(ctx context.Context, symbol string) (decimal.NullDecimal, error) {
	body, err := y.get(ctx, "/v7/finance/quote", map[string]string{
		"symbols": symbol,
		"fields":  "symbol,trailingPE",
	}, "")
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}

	pe := gjson.GetBytes(body, "quoteResponse.result.0.trailingPE")
	if pe.Type != gjson.Number {
		y.log.Debug().Str("symbol", symbol).Msg("trailingPE absent")
		return decimal.NullDecimal{}, nil
	}
	ratio, err := decimal.NewFromString(pe.Raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse trailingPE %q: %w", pe.Raw, err)
	}
	return decimal.NullDecimal{Decimal: ratio, Valid: true}, nil
}

func (y *Yahoo) get(ctx context.Context, path string, params map[string]string, symbol string) ([]byte, error) {
	req := y.client.R().SetContext(ctx).SetQueryParams(params)
	if symbol != "" {
		req.SetPathParam("symbol", symbol)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response")
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
