package md

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when a source answers but has no usable close.
var ErrNoPrice = errors.New("no price available")

type Quote struct {
	Symbol string
	Close  decimal.Decimal
	Time   time.Time
}

type PriceSource interface {
	LatestClose(ctx context.Context, symbol string) (Quote, error)
}

// RatioSource returns an invalid NullDecimal when the source has no
// ratio for the symbol; errors are reserved for failed requests.
type RatioSource interface {
	TrailingPE(ctx context.Context, symbol string) (decimal.NullDecimal, error)
}

type Provider interface {
	PriceSource
	RatioSource
}

// Feed pairs a price source with a ratio source. A nil Ratio never has
// a reading.
type Feed struct {
	Price PriceSource
	Ratio RatioSource
}

func (f Feed) LatestClose(ctx context.Context, symbol string) (Quote, error) {
	return f.Price.LatestClose(ctx, symbol)
}

func (f Feed) TrailingPE(ctx context.Context, symbol string) (decimal.NullDecimal, error) {
	if f.Ratio == nil {
		return decimal.NullDecimal{}, nil
	}
	return f.Ratio.TrailingPE(ctx, symbol)
}
