// Package portfolio combines a composition ledger with a price source to value
// a portfolio, and resolves (owner, name) pairs to portfolios through Manager.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/chart"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/ledger"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

var (
	// ErrNoPriceData is returned by TotalValue when a held ticker has no close,
	// or a close of zero, on the requested date.
	ErrNoPriceData = fmt.Errorf("%w: no data found for the given date", apperr.ErrData)

	ErrInvalidRange = fmt.Errorf("%w: start date must not be after end date", apperr.ErrValidation)
)

// Portfolio is one ledger valued against a price source. Its holdings change
// only through Manager.
type Portfolio struct {
	owner  string
	name   string
	fixed  bool
	ledger *ledger.Ledger
	prices prices.Source
}

func newPortfolio(owner, name string, src prices.Source, clock dates.Clock) *Portfolio {
	return &Portfolio{
		owner:  owner,
		name:   name,
		ledger: ledger.New(ledger.WithClock(clock)),
		prices: src,
	}
}

func (p *Portfolio) clone() *Portfolio {
	c := *p
	c.ledger = p.ledger.Clone()
	return &c
}

func (p *Portfolio) Owner() string { return p.owner }
func (p *Portfolio) Name() string  { return p.name }

// Fixed reports whether the holdings were set at creation and cannot change.
func (p *Portfolio) Fixed() bool { return p.fixed }

func (p *Portfolio) buy(ticker string, shares float64, date time.Time) error {
	return p.ledger.Buy(ticker, shares, date)
}

func (p *Portfolio) sell(ticker string, shares float64, date time.Time) error {
	return p.ledger.Sell(ticker, shares, date)
}

// CompositionAt returns the holdings on date.
func (p *Portfolio) CompositionAt(date time.Time) ledger.Composition {
	return p.ledger.CompositionAt(date)
}

// Dates lists the dates with a recorded snapshot.
func (p *Portfolio) Dates() []time.Time {
	return p.ledger.Dates()
}

// CostBasis is the capital committed by purchases up to and including date.
// For each ticker, every increase of the recorded shares between consecutive
// snapshots is priced at the close of the later snapshot date. Sales never
// reduce it. A purchase date without price data contributes nothing.
func (p *Portfolio) CostBasis(ctx context.Context, date time.Time) (float64, error) {
	snaps := p.ledger.Snapshots(date)

	total := 0.0
	for _, ticker := range p.ledger.Tickers() {
		previous := 0.0
		for _, snap := range snaps {
			current := snap.Shares(ticker)
			if bought := current - previous; bought > 0 {
				closePrice, err := prices.Close(ctx, p.prices, ticker, snap.Date)
				switch {
				case errors.Is(err, prices.ErrNoData):
					log.Warn("no close for purchase, excluded from cost basis",
						zap.String("symbol", ticker),
						zap.Time("date", snap.Date),
					)
				case err != nil:
					return 0, fmt.Errorf("failed to get close of %s: %w", ticker, err)
				default:
					total += bought * closePrice
				}
			}
			previous = current
		}
	}
	return total, nil
}

// TotalValue is the market value of the holdings on date. It is zero before
// the first recorded snapshot. A held ticker without a positive close on date
// is an error.
func (p *Portfolio) TotalValue(ctx context.Context, date time.Time) (float64, error) {
	date = dates.Normalize(date)
	if p.before(date) {
		return 0, nil
	}

	total := 0.0
	comp := p.ledger.CompositionAt(date)
	for _, ticker := range comp.Tickers() {
		closePrice, err := prices.Close(ctx, p.prices, ticker, date)
		if errors.Is(err, prices.ErrNoData) || (err == nil && closePrice == 0) {
			return 0, fmt.Errorf("%s on %s: %w", ticker, dates.Format(date), ErrNoPriceData)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get close of %s: %w", ticker, err)
		}
		total += comp[ticker] * closePrice
	}
	return total, nil
}

// PerformanceChart renders the value of the portfolio on every calendar day of
// [start, end]. A day on which none of the holdings is priced repeats the
// previous day's value.
func (p *Portfolio) PerformanceChart(ctx context.Context, start, end time.Time) (string, error) {
	points, err := p.Performance(ctx, start, end)
	if err != nil {
		return "", err
	}
	return chart.Render(points), nil
}

// Performance returns the daily values plotted by PerformanceChart.
func (p *Portfolio) Performance(ctx context.Context, start, end time.Time) ([]chart.Point, error) {
	start, end = dates.Normalize(start), dates.Normalize(end)
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	var (
		points []chart.Point
		last   float64
	)
	for day := start; !day.After(end); day = dates.AddDays(day, 1) {
		value, priced, err := p.dayValue(ctx, day)
		if err != nil {
			return nil, err
		}
		if priced {
			last = value
		}
		points = append(points, chart.Point{Date: day, Value: last})
	}
	return points, nil
}

// dayValue sums the priced holdings of day. priced reports whether any holding
// had a positive close.
func (p *Portfolio) dayValue(ctx context.Context, day time.Time) (float64, bool, error) {
	if p.before(day) {
		return 0, false, nil
	}

	var (
		total  float64
		priced bool
	)
	comp := p.ledger.CompositionAt(day)
	for _, ticker := range comp.Tickers() {
		closePrice, err := prices.Close(ctx, p.prices, ticker, day)
		if errors.Is(err, prices.ErrNoData) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to get close of %s: %w", ticker, err)
		}
		if closePrice > 0 {
			priced = true
		}
		total += comp[ticker] * closePrice
	}
	return total, priced, nil
}

// before reports whether date precedes every snapshot.
func (p *Portfolio) before(date time.Time) bool {
	ds := p.ledger.Dates()
	return len(ds) > 0 && date.Before(ds[0])
}
