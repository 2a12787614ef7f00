package engine

import (
	"context"
	"fmt"
	"time"

	"dcabot/internal/md"
	"dcabot/internal/risk"
	"dcabot/internal/state"
	"dcabot/internal/strategy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	ResultHold       = "hold"
	ResultBought     = "bought"
	ResultLiquidated = "liquidated"
	ResultRejected   = "rejected"
	ResultNoPrice    = "no_price"
	ResultError      = "error"
)

// Snapshot is what the market data provider could supply for this run.
// A missing ratio is an invalid NullDecimal.
type Snapshot struct {
	Price          decimal.Decimal
	ValuationRatio decimal.NullDecimal
}

// Outcome is the result of applying the funding and trading rules once.
type Outcome struct {
	Portfolio     state.Portfolio
	Actions       []string
	Funded        bool
	Ratio         decimal.Decimal
	RatioFallback bool
	Intent        strategy.TradeIntent
	Result        string
	RejectReason  string
	Traded        decimal.Decimal
}

type Options struct {
	Symbol string
	DryRun bool
}

type Engine struct {
	opts      Options
	rules     strategy.Rules
	strategy  strategy.Strategy
	gate      risk.Gate
	feed      md.Provider
	store     state.Store
	decisions *DecisionLogger
	log       zerolog.Logger
}

func New(opts Options, rules strategy.Rules, strat strategy.Strategy, gate risk.Gate, feed md.Provider, store state.Store, decisions *DecisionLogger, log zerolog.Logger) *Engine {
	return &Engine{
		opts:      opts,
		rules:     rules,
		strategy:  strat,
		gate:      gate,
		feed:      feed,
		store:     store,
		decisions: decisions,
		log:       log.With().Str("component", "engine").Str("symbol", opts.Symbol).Logger(),
	}
}

// Step applies the funding rule and then the trading rule to a copy of
// current. It performs no I/O; current is left untouched.
func (e *Engine) Step(today time.Time, current state.Portfolio, snap Snapshot) (Outcome, error) {
	p := current.Clone()
	before := len(p.History)
	out := Outcome{}

	if e.rules.FundingDue(today, p) {
		if err := p.Fund(today, e.rules.FundingAmount); err != nil {
			return Outcome{}, fmt.Errorf("apply funding: %w", err)
		}
		out.Funded = true
	}

	ratio := snap.ValuationRatio.Decimal
	if !snap.ValuationRatio.Valid {
		ratio = p.LastPE
		out.RatioFallback = true
	}
	out.Ratio = ratio

	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Date:           today,
		Price:          snap.Price,
		ValuationRatio: ratio,
		Cash:           p.Cash,
		Shares:         p.Shares,
	})
	out.Intent = intent

	approved, err := e.gate.Evaluate(intent, risk.RiskContext{
		Price:  snap.Price,
		Cash:   p.Cash,
		Shares: p.Shares,
	})
	switch {
	case err != nil:
		out.Result = ResultRejected
		out.RejectReason = err.Error()
	case approved.Intent.Action == strategy.Buy:
		shares, err := p.Buy(today, approved.Intent.Amount, snap.Price)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply buy: %w", err)
		}
		out.Result = ResultBought
		out.Traded = shares
	case approved.Intent.Action == strategy.Sell:
		proceeds, err := p.Liquidate(today, snap.Price)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply liquidation: %w", err)
		}
		out.Result = ResultLiquidated
		out.Traded = proceeds
	default:
		out.Result = ResultHold
	}

	p.LastPE = ratio
	out.Actions = append([]string(nil), p.History[before:]...)
	out.Portfolio = p
	return out, nil
}

// Run performs one invocation: load, fetch, Step, save. A missing price
// or a failed Step ends the run without saving and without an error.
// Only storage failures are returned.
func (e *Engine) Run(ctx context.Context, today time.Time) error {
	runID := newRunID(time.Now())
	log := e.log.With().Str("run_id", runID).Logger()

	decision := Decision{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Date:      today.Format(state.DateLayout),
		Symbol:    e.opts.Symbol,
		DryRun:    e.opts.DryRun,
	}
	defer func() { e.decisions.Append(decision) }()

	current, err := e.store.Load(ctx)
	if err != nil {
		decision.Result = ResultError
		decision.Error = err.Error()
		return fmt.Errorf("load portfolio from %s: %w", e.store.Location(), err)
	}

	// Funding is reported before market data is requested; a run that
	// then lacks a price discards it along with everything else.
	if e.rules.FundingDue(today, current) {
		log.Info().Int("year", today.Year()).Stringer("amount", e.rules.FundingAmount).Msg("annual funding credited")
	}

	quote, err := e.feed.LatestClose(ctx, e.opts.Symbol)
	if err != nil || !quote.Close.IsPositive() {
		if err == nil {
			err = md.ErrNoPrice
		}
		log.Warn().Err(err).Msg("cannot fetch price, skipping this run")
		decision.Result = ResultNoPrice
		decision.Error = err.Error()
		return nil
	}
	decision.Price = decimal.NewNullDecimal(quote.Close)

	pe, err := e.feed.TrailingPE(ctx, e.opts.Symbol)
	if err != nil {
		log.Warn().Err(err).Msg("valuation ratio fetch failed")
		pe = decimal.NullDecimal{}
	}

	outcome, err := e.Step(today, current, Snapshot{Price: quote.Close, ValuationRatio: pe})
	if err != nil {
		log.Error().Err(err).Msg("run failed, portfolio not saved")
		decision.Result = ResultError
		decision.Error = err.Error()
		return nil
	}
	decision.fill(outcome)

	if outcome.RatioFallback {
		log.Warn().Stringer("last_pe", outcome.Ratio).Msg("live valuation ratio unavailable, reusing last reading")
	}
	log.Info().Stringer("price", quote.Close).Stringer("pe", outcome.Ratio).Msg("market snapshot")
	e.logOutcome(log, outcome)

	if e.opts.DryRun {
		log.Info().Msg("dry run, portfolio not saved")
		return nil
	}
	if err := e.store.Save(ctx, outcome.Portfolio); err != nil {
		decision.Error = err.Error()
		return fmt.Errorf("save portfolio to %s: %w", e.store.Location(), err)
	}
	decision.Saved = true

	log.Info().
		Stringer("cash", outcome.Portfolio.Cash).
		Stringer("shares", outcome.Portfolio.Shares).
		Stringer("total_invested", outcome.Portfolio.TotalInvested).
		Str("location", e.store.Location()).
		Msg("run complete, portfolio saved")
	return nil
}

func (e *Engine) logOutcome(log zerolog.Logger, out Outcome) {
	switch out.Result {
	case ResultBought:
		log.Info().Stringer("amount", out.Intent.Amount).Stringer("shares", out.Traded).Msg("accumulated")
	case ResultLiquidated:
		log.Info().Stringer("proceeds", out.Traded).Msg("position liquidated")
	case ResultRejected:
		log.Info().Str("intent", string(out.Intent.Action)).Str("reason", out.RejectReason).Msg("no trade")
	default:
		log.Info().Str("reason", out.Intent.Reason).Msg("hold")
	}
}

func newRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}
