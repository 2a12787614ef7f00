package risk

import (
	"testing"

	"dcabot/internal/strategy"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestGateRejectsInsufficientCash(t *testing.T) {
	gate := NewGate(zerolog.Nop())
	intent := strategy.TradeIntent{Action: strategy.Buy, Amount: d(200)}

	_, err := gate.Evaluate(intent, RiskContext{Price: d(100), Cash: d(199)})
	require.ErrorIs(t, err, ErrInsufficientCash)
}

func TestGateApprovesBuyWithExactCash(t *testing.T) {
	gate := NewGate(zerolog.Nop())
	intent := strategy.TradeIntent{Action: strategy.Buy, Amount: d(200)}

	approved, err := gate.Evaluate(intent, RiskContext{Price: d(100), Cash: d(200)})
	require.NoError(t, err)
	assert.Equal(t, strategy.Buy, approved.Intent.Action)
	assert.Equal(t, "approved", approved.Reason)
}

func TestGateRejectsSellWithoutShares(t *testing.T) {
	gate := NewGate(zerolog.Nop())
	intent := strategy.TradeIntent{Action: strategy.Sell, Qty: d(0)}

	_, err := gate.Evaluate(intent, RiskContext{Price: d(10)})
	require.ErrorIs(t, err, ErrNoPosition)
}

func TestGateRejectsNonPositivePrice(t *testing.T) {
	gate := NewGate(zerolog.Nop())

	_, err := gate.Evaluate(strategy.TradeIntent{Action: strategy.Sell, Qty: d(5)}, RiskContext{Price: d(0), Shares: d(5)})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = gate.Evaluate(strategy.TradeIntent{Action: strategy.Buy, Amount: d(200)}, RiskContext{Price: d(-1), Cash: d(1000)})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestGatePassesHoldThrough(t *testing.T) {
	gate := Gate{}
	approved, err := gate.Evaluate(strategy.TradeIntent{Action: strategy.Hold}, RiskContext{})
	require.NoError(t, err)
	assert.Equal(t, "hold", approved.Reason)
}
