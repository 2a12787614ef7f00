package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"dcabot/internal/strategy"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Decision is one NDJSON line per run attempt, including runs that
// skipped for lack of a price.
type Decision struct {
	RunID          string              `json:"run_id"`
	Timestamp      time.Time           `json:"timestamp"`
	Date           string              `json:"date"`
	Symbol         string              `json:"symbol"`
	Price          decimal.NullDecimal `json:"price"`
	ValuationRatio decimal.NullDecimal `json:"valuation_ratio"`
	RatioFallback  bool                `json:"ratio_fallback"`
	Funded         bool                `json:"funded"`
	Intent         strategy.Action     `json:"intent,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Result         string              `json:"result"`
	RejectReason   string              `json:"reject_reason,omitempty"`
	Actions        []string            `json:"actions,omitempty"`
	Cash           decimal.NullDecimal `json:"cash"`
	Shares         decimal.NullDecimal `json:"shares"`
	DryRun         bool                `json:"dry_run,omitempty"`
	Saved          bool                `json:"saved"`
	Error          string              `json:"error,omitempty"`
}

func (d *Decision) fill(out Outcome) {
	d.ValuationRatio = decimal.NewNullDecimal(out.Ratio)
	d.RatioFallback = out.RatioFallback
	d.Funded = out.Funded
	d.Intent = out.Intent.Action
	d.Reason = out.Intent.Reason
	d.Result = out.Result
	d.RejectReason = out.RejectReason
	d.Actions = out.Actions
	d.Cash = decimal.NewNullDecimal(out.Portfolio.Cash)
	d.Shares = decimal.NewNullDecimal(out.Portfolio.Shares)
}

// DecisionLogger appends decisions to a file. A nil *DecisionLogger
// discards everything.
type DecisionLogger struct {
	file   *os.File
	writer *bufio.Writer
	log    zerolog.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, log zerolog.Logger) (*DecisionLogger, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		file:   file,
		writer: bufio.NewWriter(file),
		log:    log.With().Str("component", "decisions").Logger(),
	}, nil
}

func (d *DecisionLogger) Append(decision Decision) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(decision)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal decision")
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error().Err(err).Msg("failed to write decision")
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.log.Error().Err(err).Msg("failed to flush decision log")
	}
}

func (d *DecisionLogger) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
