package strategy

import (
	"testing"
	"time"

	"dcabot/internal/state"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func snapshotAt(ratio, shares, cash int64) MarketSnapshot {
	return MarketSnapshot{
		Price:          decimal.NewFromInt(100),
		ValuationRatio: decimal.NewFromInt(ratio),
		Shares:         decimal.NewFromInt(shares),
		Cash:           decimal.NewFromInt(cash),
	}
}

func TestValuationDecide(t *testing.T) {
	strat := NewValuation(DefaultRules())

	tests := []struct {
		name     string
		snapshot MarketSnapshot
		action   Action
		reason   string
	}{
		{"sell at threshold", snapshotAt(38, 5, 0), Sell, "ratio_at_or_above_sell_threshold"},
		{"sell above threshold", snapshotAt(40, 50, 0), Sell, "ratio_at_or_above_sell_threshold"},
		{"sell without shares holds", snapshotAt(40, 0, 10000), Hold, "no_position_to_sell"},
		{"buy at threshold", snapshotAt(34, 0, 10000), Buy, "ratio_at_or_below_buy_threshold"},
		{"buy below threshold with shares", snapshotAt(30, 7, 10000), Buy, "ratio_at_or_below_buy_threshold"},
		{"buy is proposed even without cash", snapshotAt(30, 0, 0), Buy, "ratio_at_or_below_buy_threshold"},
		{"hold band low edge", snapshotAt(35, 3, 10000), Hold, "ratio_in_hold_band"},
		{"hold band high edge", snapshotAt(37, 3, 10000), Hold, "ratio_in_hold_band"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := strat.Decide(tt.snapshot)
			assert.Equal(t, tt.action, intent.Action)
			assert.Equal(t, tt.reason, intent.Reason)
		})
	}
}

func TestValuationSellQtyIsWholePosition(t *testing.T) {
	intent := NewValuation(DefaultRules()).Decide(snapshotAt(45, 12, 0))
	assert.True(t, intent.Qty.Equal(decimal.NewFromInt(12)))
}

func TestValuationBuyAmountIsBase(t *testing.T) {
	intent := NewValuation(DefaultRules()).Decide(snapshotAt(20, 0, 500))
	assert.True(t, intent.Amount.Equal(decimal.NewFromInt(200)))
}

func TestValuationFractionalRatio(t *testing.T) {
	strat := NewValuation(DefaultRules())
	snap := snapshotAt(0, 1, 1000)

	snap.ValuationRatio = decimal.RequireFromString("34.01")
	assert.Equal(t, Hold, strat.Decide(snap).Action)

	snap.ValuationRatio = decimal.RequireFromString("37.99")
	assert.Equal(t, Hold, strat.Decide(snap).Action)
}

func TestRulesValidate(t *testing.T) {
	assert.NoError(t, DefaultRules().Validate())

	overlapping := DefaultRules()
	overlapping.SellThreshold = decimal.NewFromInt(34)
	assert.ErrorContains(t, overlapping.Validate(), "sell threshold")

	badMonth := DefaultRules()
	badMonth.FundingStartMonth = 13
	assert.Error(t, badMonth.Validate())

	noFunding := DefaultRules()
	noFunding.FundingAmount = decimal.Zero
	assert.Error(t, noFunding.Validate())
}

func TestFundingDue(t *testing.T) {
	rules := DefaultRules()
	p := state.Default(state.DefaultSeedPE)

	assert.False(t, rules.FundingDue(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), p))
	assert.True(t, rules.FundingDue(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), p))
	assert.True(t, rules.FundingDue(time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), p))

	p.FundedYears = []int{2024}
	assert.False(t, rules.FundingDue(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), p))
	assert.True(t, rules.FundingDue(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), p))
}
