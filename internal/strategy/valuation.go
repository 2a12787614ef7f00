package strategy

// Valuation trades on the valuation ratio alone: liquidate when it is
// rich, accumulate a fixed amount when it is cheap, hold in between.
type Valuation struct {
	Rules Rules
}

func NewValuation(rules Rules) Valuation {
	return Valuation{Rules: rules}
}

func (v Valuation) Decide(snapshot MarketSnapshot) TradeIntent {
	ratio := snapshot.ValuationRatio

	if ratio.GreaterThanOrEqual(v.Rules.SellThreshold) && snapshot.Shares.IsPositive() {
		return TradeIntent{
			Action: Sell,
			Qty:    snapshot.Shares,
			Reason: "ratio_at_or_above_sell_threshold",
		}
	}
	if ratio.LessThanOrEqual(v.Rules.BuyThreshold) {
		return TradeIntent{
			Action: Buy,
			Amount: v.Rules.BaseBuyAmount,
			Reason: "ratio_at_or_below_buy_threshold",
		}
	}
	if ratio.GreaterThanOrEqual(v.Rules.SellThreshold) {
		return TradeIntent{Action: Hold, Reason: "no_position_to_sell"}
	}
	return TradeIntent{Action: Hold, Reason: "ratio_in_hold_band"}
}
