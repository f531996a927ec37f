// Package prices defines the daily price series boundary consumed by the
// ledger valuation and the analytics, plus in-memory and cached sources.
package prices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
)

// ErrNoData is returned when a source has no bar for the requested ticker and
// date. It is distinct from a bar whose close is zero.
var ErrNoData = fmt.Errorf("%w: no price data", apperr.ErrData)

// Bar is one trading day of a ticker.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	Close float64   `json:"close"`
}

// Source supplies daily bars. Dates are calendar dates (see package dates).
type Source interface {
	// Bar returns the bar of ticker at date or ErrNoData.
	Bar(ctx context.Context, ticker string, date time.Time) (Bar, error)
	// Range returns the bars in [start, end], oldest first. An empty range is not an error.
	Range(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
	// Trailing returns up to n bars strictly before the given date, oldest first.
	Trailing(ctx context.Context, ticker string, before time.Time, n int) ([]Bar, error)
}

// NormalizeTicker upper-cases and trims a ticker so lookups are case-insensitive.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Close is a convenience returning only the closing price.
func Close(ctx context.Context, src Source, ticker string, date time.Time) (float64, error) {
	b, err := src.Bar(ctx, ticker, date)
	if err != nil {
		return 0, err
	}
	return b.Close, nil
}
