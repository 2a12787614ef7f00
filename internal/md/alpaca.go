package md

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Alpaca supplies the latest bar close. It has no valuation ratio, so it
// is paired with another RatioSource in a Feed.
type Alpaca struct {
	client *marketdata.Client
	feed   marketdata.Feed
	log    zerolog.Logger
}

// AlpacaOptions configures the market data client. An empty BaseURL
// uses APCA_API_DATA_URL or the production data host.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	Feed      string
	BaseURL   string
}

func NewAlpaca(opts AlpacaOptions, log zerolog.Logger) *Alpaca {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	return &Alpaca{
		client: client,
		feed:   parseFeed(opts.Feed),
		log:    log.With().Str("client", "alpaca").Logger(),
	}
}

func (a *Alpaca) LatestClose(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	bar, err := a.client.GetLatestBar(symbol, marketdata.GetLatestBarRequest{Feed: a.feed})
	if err != nil {
		return Quote{}, fmt.Errorf("latest bar for %s: %w", symbol, err)
	}
	if bar == nil || bar.Close <= 0 {
		return Quote{}, fmt.Errorf("%w: no bar for %s", ErrNoPrice, symbol)
	}
	price := decimal.NewFromFloat(bar.Close)
	a.log.Debug().Str("symbol", symbol).Stringer("close", price).Time("bar_time", bar.Timestamp).Msg("close fetched")
	return Quote{Symbol: symbol, Close: price, Time: bar.Timestamp.UTC()}, nil
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
