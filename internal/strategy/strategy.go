// Package strategy executes weighted and periodic (dollar cost averaging)
// investments into a portfolio ledger.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/ledger"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

const (
	// RatioTolerance is how far the ratios may sum away from 1.
	RatioTolerance = 1e-6
	// MaxAttempts bounds the buys tried per interval step, one day apart.
	MaxAttempts = 7
)

var (
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be positive", apperr.ErrValidation)
	ErrInvalidRatios  = fmt.Errorf("%w: the sum of the investment ratios must equal 1", apperr.ErrValidation)
	ErrNegativeRatio  = fmt.Errorf("%w: weighted ratio cannot be negative", apperr.ErrValidation)
	ErrNotInPortfolio = fmt.Errorf("%w: stock is not held in the portfolio on this date", apperr.ErrValidation)
	ErrFutureDate     = fmt.Errorf("%w: date cannot be in the future", apperr.ErrValidation)
	ErrInvalidPeriod  = fmt.Errorf("%w: invalid investment period", apperr.ErrValidation)
	ErrCannotInvest   = fmt.Errorf("%w: cannot invest on this date", apperr.ErrData)
)

// Book is the ledger the executor buys into.
type Book interface {
	CompositionAt(date time.Time) ledger.Composition
	Buy(ticker string, shares float64, date time.Time) error
}

// Investment is a single weighted buy.
type Investment struct {
	Amount float64
	Ratios map[string]float64
	Date   time.Time
}

// Plan is a periodic investment. A zero End means today.
type Plan struct {
	Amount       float64
	Ratios       map[string]float64
	Start        time.Time
	End          time.Time
	IntervalDays int
}

// Executor runs investments against a Book using closing prices from a Source.
type Executor struct {
	prices prices.Source
	clock  dates.Clock
}

// NewExecutor creates an Executor. A nil clock means the wall clock.
func NewExecutor(src prices.Source, clock dates.Clock) *Executor {
	if clock == nil {
		clock = dates.SystemClock
	}
	return &Executor{prices: src, clock: clock}
}

// Invest splits amount across the ratios and buys amount*ratio/close shares of
// each ticker at inv.Date. Every ticker must already be held on that date.
// Nothing is bought unless every needed close is available and non-zero.
func (e *Executor) Invest(ctx context.Context, book Book, inv Investment) error {
	ratios, err := validateRatios(inv.Amount, inv.Ratios)
	if err != nil {
		return err
	}
	date := dates.Normalize(inv.Date)
	if dates.IsFuture(date, e.clock) {
		return fmt.Errorf("%s: %w", dates.Format(date), ErrFutureDate)
	}

	held := book.CompositionAt(date)
	for _, ticker := range sortedTickers(ratios) {
		if _, ok := held[ticker]; !ok {
			return fmt.Errorf("%s on %s: %w", ticker, dates.Format(date), ErrNotInPortfolio)
		}
	}

	return e.buyWeighted(ctx, book, inv.Amount, ratios, date)
}

// buyWeighted prices every ticker with a positive ratio first, then buys.
func (e *Executor) buyWeighted(ctx context.Context, book Book, amount float64, ratios map[string]float64, date time.Time) error {
	type order struct {
		ticker string
		shares float64
	}

	var orders []order
	for _, ticker := range sortedTickers(ratios) {
		ratio := ratios[ticker]
		if ratio == 0 {
			continue
		}
		closePrice, err := prices.Close(ctx, e.prices, ticker, date)
		if errors.Is(err, prices.ErrNoData) || (err == nil && closePrice == 0) {
			return fmt.Errorf("%s on %s: %w", ticker, dates.Format(date), ErrCannotInvest)
		}
		if err != nil {
			return fmt.Errorf("failed to price %s on %s: %w", ticker, dates.Format(date), err)
		}
		orders = append(orders, order{ticker: ticker, shares: amount * ratio / closePrice})
	}

	for _, o := range orders {
		if err := book.Buy(o.ticker, o.shares, date); err != nil {
			return fmt.Errorf("failed to buy %s: %w", o.ticker, err)
		}
	}
	return nil
}

// InvestPeriodically runs one weighted buy every IntervalDays from Start until
// End. Each step is retried on the following days, up to MaxAttempts, and the
// next step is scheduled IntervalDays after the day the step stopped on.
//
// A failed step does not fail the call; the outcome of every step is returned.
// Only validation errors and context cancellation are returned as errors.
func (e *Executor) InvestPeriodically(ctx context.Context, book Book, plan Plan) ([]Step, error) {
	start, end, err := e.validatePlan(plan)
	if err != nil {
		return nil, err
	}
	ratios, err := validateRatios(plan.Amount, plan.Ratios)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for cursor := start; !cursor.After(end); {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		step := NewStep(cursor)
		for step.State == Pending {
			step = step.Advance(e.buyWeighted(ctx, book, plan.Amount, ratios, step.Date))
		}
		if step.State == Exhausted {
			log.Warn("periodic investment step skipped",
				zap.Time("scheduled", step.Scheduled),
				zap.Int("attempts", step.Attempts),
				zap.Error(step.Err),
			)
		}
		steps = append(steps, step)
		cursor = dates.AddDays(step.resume(), plan.IntervalDays)
	}
	return steps, nil
}

func (e *Executor) validatePlan(plan Plan) (time.Time, time.Time, error) {
	if plan.Start.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("start date is required: %w", ErrInvalidPeriod)
	}
	start := dates.Normalize(plan.Start)
	end := dates.Today(e.clock)
	if !plan.End.IsZero() {
		end = dates.Normalize(plan.End)
	}

	switch {
	case start.After(end):
		return time.Time{}, time.Time{}, fmt.Errorf("start date cannot be after end date: %w", ErrInvalidPeriod)
	case dates.IsFuture(end, e.clock):
		return time.Time{}, time.Time{}, fmt.Errorf("end date cannot be in the future: %w", ErrInvalidPeriod)
	case plan.IntervalDays < 1:
		return time.Time{}, time.Time{}, fmt.Errorf("interval must be at least one day: %w", ErrInvalidPeriod)
	case plan.IntervalDays > dates.DaysBetween(start, end):
		return time.Time{}, time.Time{}, fmt.Errorf("interval cannot exceed the %d days between start and end: %w",
			dates.DaysBetween(start, end), ErrInvalidPeriod)
	}
	return start, end, nil
}

// validateRatios checks the amount and ratios and returns the ratios keyed by
// normalized ticker.
func validateRatios(amount float64, ratios map[string]float64) (map[string]float64, error) {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}
	if len(ratios) == 0 {
		return nil, ErrInvalidRatios
	}

	out := make(map[string]float64, len(ratios))
	sum := 0.0
	for ticker, ratio := range ratios {
		if ratio < 0 || math.IsNaN(ratio) {
			return nil, fmt.Errorf("%s: %w", ticker, ErrNegativeRatio)
		}
		out[prices.NormalizeTicker(ticker)] += ratio
		sum += ratio
	}
	if math.Abs(sum-1) > RatioTolerance {
		return nil, fmt.Errorf("ratios sum to %g: %w", sum, ErrInvalidRatios)
	}
	return out, nil
}

func sortedTickers(ratios map[string]float64) []string {
	out := make([]string, 0, len(ratios))
	for t := range ratios {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
