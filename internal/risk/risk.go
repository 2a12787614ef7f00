package risk

import (
	"errors"

	"dcabot/internal/strategy"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Rejections are normal outcomes, not failures; the run continues with
// no trade.
var (
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInsufficientCash = errors.New("insufficient_cash")
	ErrNoPosition       = errors.New("no_position_to_sell")
)

type RiskContext struct {
	Price  decimal.Decimal
	Cash   decimal.Decimal
	Shares decimal.Decimal
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

type Gate struct {
	Log zerolog.Logger
}

func NewGate(log zerolog.Logger) Gate {
	return Gate{Log: log.With().Str("component", "risk").Logger()}
}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	g.Log.Debug().
		Str("intent", string(intent.Action)).
		Stringer("amount", intent.Amount).
		Stringer("qty", intent.Qty).
		Stringer("price", ctx.Price).
		Stringer("cash", ctx.Cash).
		Stringer("shares", ctx.Shares).
		Msg("risk evaluation")

	if !ctx.Price.IsPositive() {
		return g.reject(ErrInvalidPrice)
	}

	switch intent.Action {
	case strategy.Buy:
		if !intent.Amount.IsPositive() {
			return g.reject(ErrInvalidAmount)
		}
		if ctx.Cash.LessThan(intent.Amount) {
			g.Log.Debug().Stringer("cash", ctx.Cash).Stringer("need", intent.Amount).Msg("risk rejected")
			return ApprovedIntent{}, ErrInsufficientCash
		}
	case strategy.Sell:
		if !ctx.Shares.IsPositive() || !intent.Qty.IsPositive() {
			return g.reject(ErrNoPosition)
		}
	}

	g.Log.Debug().Str("intent", string(intent.Action)).Str("reason", intent.Reason).Msg("risk approved")
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}

func (g Gate) reject(err error) (ApprovedIntent, error) {
	g.Log.Debug().Str("reason", err.Error()).Msg("risk rejected")
	return ApprovedIntent{}, err
}
