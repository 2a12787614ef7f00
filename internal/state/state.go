package state

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the date format used in history entries.
const DateLayout = "2006-01-02"

// DefaultSeedPE is the valuation ratio a fresh portfolio starts from.
var DefaultSeedPE = decimal.NewFromInt(35)

func init() {
	// Documents written by earlier runs carry bare JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrAlreadyFunded     = errors.New("year already funded")
	ErrInsufficientCash  = errors.New("insufficient cash")
	ErrNoPosition        = errors.New("no position to liquidate")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// Portfolio is the persisted document. Field names match the on-disk
// format of earlier runs and must not change.
type Portfolio struct {
	Cash          decimal.Decimal `json:"cash"`
	Shares        decimal.Decimal `json:"shares"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	LastPE        decimal.Decimal `json:"last_pe"`
	FundedYears   []int           `json:"funded_years"`
	History       []string        `json:"history"`
}

func Default(seedPE decimal.Decimal) Portfolio {
	return Portfolio{
		Cash:          decimal.Zero,
		Shares:        decimal.Zero,
		TotalInvested: decimal.Zero,
		LastPE:        seedPE,
		FundedYears:   []int{},
		History:       []string{},
	}
}

// Clone returns a deep copy so a run can be discarded without touching
// the loaded document.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.FundedYears = append(make([]int, 0, len(p.FundedYears)), p.FundedYears...)
	c.History = append(make([]string, 0, len(p.History)), p.History...)
	return c
}

func (p Portfolio) HasFunded(year int) bool {
	return slices.Contains(p.FundedYears, year)
}

// Fund credits the annual funding for today's year.
func (p *Portfolio) Fund(today time.Time, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	year := today.Year()
	if p.HasFunded(year) {
		return fmt.Errorf("%w: %d", ErrAlreadyFunded, year)
	}
	p.Cash = p.Cash.Add(amount)
	p.TotalInvested = p.TotalInvested.Add(amount)
	p.FundedYears = append(p.FundedYears, year)
	p.record(today, fmt.Sprintf("annual funding +%s", amount.String()))
	return nil
}

// Buy spends amount of cash on shares at price and returns the shares
// purchased. Cash is never allowed to go negative.
func (p *Portfolio) Buy(today time.Time, amount, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	if p.Cash.LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: have %s, need %s", ErrInsufficientCash, p.Cash, amount)
	}
	purchased := amount.Div(price)
	p.Shares = p.Shares.Add(purchased)
	p.Cash = p.Cash.Sub(amount)
	p.record(today, fmt.Sprintf("purchased %s shares @ %s", purchased.StringFixed(4), price.String()))
	return purchased, nil
}

// Liquidate sells the whole position at price and returns the proceeds.
func (p *Portfolio) Liquidate(today time.Time, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	if !p.Shares.IsPositive() {
		return decimal.Zero, ErrNoPosition
	}
	proceeds := p.Shares.Mul(price)
	p.Cash = p.Cash.Add(proceeds)
	p.Shares = decimal.Zero
	p.record(today, fmt.Sprintf("full liquidation @ %s", price.String()))
	return proceeds, nil
}

func (p *Portfolio) record(today time.Time, entry string) {
	p.History = append(p.History, today.Format(DateLayout)+": "+entry)
}

// Validate reports documents no run could have produced.
func (p Portfolio) Validate() error {
	if p.Cash.IsNegative() {
		return fmt.Errorf("negative cash %s", p.Cash)
	}
	if p.Shares.IsNegative() {
		return fmt.Errorf("negative shares %s", p.Shares)
	}
	if p.TotalInvested.IsNegative() {
		return fmt.Errorf("negative total_invested %s", p.TotalInvested)
	}
	seen := make(map[int]struct{}, len(p.FundedYears))
	for _, y := range p.FundedYears {
		if _, dup := seen[y]; dup {
			return fmt.Errorf("year %d funded twice", y)
		}
		seen[y] = struct{}{}
	}
	return nil
}

func (p *Portfolio) normalize() {
	if p.FundedYears == nil {
		p.FundedYears = []int{}
	}
	if p.History == nil {
		p.History = []string{}
	}
}
