// Package analytics computes trends, moving averages, moving average
// crossovers and performance charts directly on a ticker's price series.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/chart"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

// CrossoverWindow is the moving average window of single crossovers.
const CrossoverWindow = 30

var (
	ErrInvalidDate   = fmt.Errorf("%w: date is required", apperr.ErrValidation)
	ErrFutureDate    = fmt.Errorf("%w: date cannot be in the future", apperr.ErrValidation)
	ErrInvalidRange  = fmt.Errorf("%w: start date must not be after end date", apperr.ErrValidation)
	ErrInvalidWindow = fmt.Errorf("%w: moving average periods must be positive and short < long", apperr.ErrValidation)

	// ErrInsufficientHistory means fewer closes precede the date than the window needs.
	ErrInsufficientHistory = fmt.Errorf("%w: not enough price history", apperr.ErrData)
)

// Trend is the direction of a stock between two dates.
type Trend string

const (
	Gain    Trend = "Gain"
	Lose    Trend = "Lose"
	Neither Trend = "Neither"
)

// Signal is emitted on a crossover day.
type Signal string

const (
	Buy  Signal = "Buy"
	Sell Signal = "Sell"
)

// Crossovers maps crossover days to their signal.
type Crossovers map[time.Time]Signal

// Dates returns the crossover days, oldest first.
func (c Crossovers) Dates() []time.Time {
	out := make([]time.Time, 0, len(c))
	for d := range c {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Analyzer answers per-ticker queries against a price source.
type Analyzer struct {
	prices prices.Source
	clock  dates.Clock
}

// New creates an Analyzer. A nil clock means the wall clock.
func New(src prices.Source, clock dates.Clock) *Analyzer {
	if clock == nil {
		clock = dates.SystemClock
	}
	return &Analyzer{prices: src, clock: clock}
}

// MovingAverage is the mean of the last days closes strictly before date.
func (a *Analyzer) MovingAverage(ctx context.Context, ticker string, date time.Time, days int) (float64, error) {
	if err := a.validateDate(date); err != nil {
		return 0, err
	}
	if days <= 0 {
		return 0, ErrInvalidWindow
	}

	bars, err := a.prices.Trailing(ctx, ticker, dates.Normalize(date), days)
	if err != nil {
		return 0, fmt.Errorf("failed to load closes of %s: %w", ticker, err)
	}
	if len(bars) < days {
		return 0, fmt.Errorf("%s has %d of %d closes before %s: %w",
			prices.NormalizeTicker(ticker), len(bars), days, dates.Format(date), ErrInsufficientHistory)
	}
	return mean(bars), nil
}

// TrendOn compares the open and the close of a single day.
func (a *Analyzer) TrendOn(ctx context.Context, ticker string, date time.Time) (Trend, error) {
	return a.Trend(ctx, ticker, date, date)
}

// Trend compares the open at start with the close at end.
func (a *Analyzer) Trend(ctx context.Context, ticker string, start, end time.Time) (Trend, error) {
	start, end, err := a.validateRange(start, end)
	if err != nil {
		return "", err
	}

	first, err := a.prices.Bar(ctx, ticker, start)
	if err != nil {
		return "", fmt.Errorf("failed to get open: %w", err)
	}
	last, err := a.prices.Bar(ctx, ticker, end)
	if err != nil {
		return "", fmt.Errorf("failed to get close: %w", err)
	}

	switch {
	case last.Close > first.Open:
		return Gain, nil
	case last.Close < first.Open:
		return Lose, nil
	default:
		return Neither, nil
	}
}

// Crossovers finds the trading days in [start, end] on which the close moves
// from below to above its CrossoverWindow-day moving average (Buy) or from
// above to below (Sell).
func (a *Analyzer) Crossovers(ctx context.Context, ticker string, start, end time.Time) (Crossovers, error) {
	start, end, err := a.validateRange(start, end)
	if err != nil {
		return nil, err
	}

	w, err := a.window(ctx, ticker, start, end, CrossoverWindow)
	if err != nil {
		return nil, err
	}
	return w.crossovers(func(i int) (float64, float64, bool) {
		ma, ok := w.average(i, CrossoverWindow)
		return w.bars[i].Close, ma, ok
	}), nil
}

// DualCrossovers finds the trading days in [start, end] on which the short-day
// moving average moves above the long-day one (Buy) or below it (Sell).
func (a *Analyzer) DualCrossovers(ctx context.Context, ticker string, start, end time.Time, short, long int) (Crossovers, error) {
	start, end, err := a.validateRange(start, end)
	if err != nil {
		return nil, err
	}
	if short <= 0 || long <= 0 || short >= long {
		return nil, fmt.Errorf("short %d, long %d: %w", short, long, ErrInvalidWindow)
	}

	w, err := a.window(ctx, ticker, start, end, long)
	if err != nil {
		return nil, err
	}
	return w.crossovers(func(i int) (float64, float64, bool) {
		fast, ok := w.average(i, short)
		if !ok {
			return 0, 0, false
		}
		slow, ok := w.average(i, long)
		return fast, slow, ok
	}), nil
}

// PerformanceChart plots the closes in [start, end].
func (a *Analyzer) PerformanceChart(ctx context.Context, ticker string, start, end time.Time) (string, error) {
	start, end, err := a.validateRange(start, end)
	if err != nil {
		return "", err
	}

	bars, err := a.prices.Range(ctx, ticker, start, end)
	if err != nil {
		return "", fmt.Errorf("failed to load closes of %s: %w", ticker, err)
	}
	points := make([]chart.Point, len(bars))
	for i, b := range bars {
		points[i] = chart.Point{Date: b.Date, Value: b.Close}
	}
	return chart.Render(points), nil
}

func (a *Analyzer) validateDate(date time.Time) error {
	if date.IsZero() {
		return ErrInvalidDate
	}
	if dates.IsFuture(date, a.clock) {
		return fmt.Errorf("%s: %w", dates.Format(date), ErrFutureDate)
	}
	return nil
}

func (a *Analyzer) validateRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	start, end = dates.Normalize(start), dates.Normalize(end)
	if start.After(end) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	if dates.IsFuture(end, a.clock) {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", dates.Format(end), ErrFutureDate)
	}
	return start, end, nil
}

// window loads the bars of [start, end] preceded by up to history earlier bars.
func (a *Analyzer) window(ctx context.Context, ticker string, start, end time.Time, history int) (*series, error) {
	inRange, err := a.prices.Range(ctx, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load closes of %s: %w", ticker, err)
	}
	if len(inRange) < 2 {
		return &series{}, nil
	}
	before, err := a.prices.Trailing(ctx, ticker, start, history)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", ticker, err)
	}
	return &series{bars: append(before, inRange...), first: len(before)}, nil
}

// series is a run of bars where the bars from first on are in the queried range.
type series struct {
	bars  []prices.Bar
	first int
}

// average is the mean of the n closes strictly before bar i.
func (s *series) average(i, n int) (float64, bool) {
	if i < n {
		return 0, false
	}
	return mean(s.bars[i-n : i]), true
}

// crossovers compares consecutive in-range days. pair returns the two values
// compared on day i; a day without them breaks the chain.
func (s *series) crossovers(pair func(i int) (float64, float64, bool)) Crossovers {
	out := make(Crossovers)
	if len(s.bars)-s.first < 2 {
		return out
	}

	var prevA, prevB float64
	havePrev := false
	for i := s.first; i < len(s.bars); i++ {
		a, b, ok := pair(i)
		if !ok {
			havePrev = false
			continue
		}
		if havePrev {
			switch {
			case prevA < prevB && a > b:
				out[s.bars[i].Date] = Buy
			case prevA > prevB && a < b:
				out[s.bars[i].Date] = Sell
			}
		}
		prevA, prevB, havePrev = a, b, true
	}
	return out
}

func mean(bars []prices.Bar) float64 {
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}
