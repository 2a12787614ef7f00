package strategy

import (
	"fmt"
	"time"

	"dcabot/internal/state"

	"github.com/shopspring/decimal"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type MarketSnapshot struct {
	Date           time.Time
	Price          decimal.Decimal
	ValuationRatio decimal.Decimal
	Cash           decimal.Decimal
	Shares         decimal.Decimal
}

// TradeIntent is what a strategy wants to do. Amount is the cash to spend
// on a buy; Qty is the number of shares to sell.
type TradeIntent struct {
	Action Action
	Amount decimal.Decimal
	Qty    decimal.Decimal
	Reason string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}

// Rules are the business constants of the plan. The comparisons that use
// them (>= for sell, <= for buy) are fixed.
type Rules struct {
	FundingAmount     decimal.Decimal
	FundingStartMonth time.Month
	SellThreshold     decimal.Decimal
	BuyThreshold      decimal.Decimal
	BaseBuyAmount     decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		FundingAmount:     decimal.NewFromInt(10000),
		FundingStartMonth: time.February,
		SellThreshold:     decimal.NewFromInt(38),
		BuyThreshold:      decimal.NewFromInt(34),
		BaseBuyAmount:     decimal.NewFromInt(200),
	}
}

func (r Rules) Validate() error {
	if !r.FundingAmount.IsPositive() {
		return fmt.Errorf("funding amount must be > 0")
	}
	if r.FundingStartMonth < time.January || r.FundingStartMonth > time.December {
		return fmt.Errorf("funding start month must be 1-12, got %d", r.FundingStartMonth)
	}
	if !r.BaseBuyAmount.IsPositive() {
		return fmt.Errorf("base buy amount must be > 0")
	}
	if !r.SellThreshold.GreaterThan(r.BuyThreshold) {
		return fmt.Errorf("sell threshold (%s) must be greater than buy threshold (%s)", r.SellThreshold, r.BuyThreshold)
	}
	return nil
}

// FundingDue reports whether the annual funding fires for today.
func (r Rules) FundingDue(today time.Time, p state.Portfolio) bool {
	return today.Month() >= r.FundingStartMonth && !p.HasFunded(today.Year())
}
