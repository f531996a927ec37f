package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

var _ prices.Source = (*DB)(nil)

// Bar implements prices.Source
func (db *DB) Bar(ctx context.Context, ticker string, date time.Time) (prices.Bar, error) {
	p, err := db.GetPriceDataBySymbolAndDate(ctx, prices.NormalizeTicker(ticker), date)
	if errors.Is(err, ErrPriceDataNotFound) {
		return prices.Bar{}, fmt.Errorf("%s on %s: %w", prices.NormalizeTicker(ticker), dates.Format(date), prices.ErrNoData)
	}
	if err != nil {
		return prices.Bar{}, err
	}
	return toBar(p), nil
}

// Range implements prices.Source
func (db *DB) Range(ctx context.Context, ticker string, start, end time.Time) ([]prices.Bar, error) {
	rows, err := db.GetPriceDataRange(ctx, prices.NormalizeTicker(ticker), start, end)
	if err != nil {
		return nil, err
	}
	return toBars(rows), nil
}

// Trailing implements prices.Source
func (db *DB) Trailing(ctx context.Context, ticker string, before time.Time, n int) ([]prices.Bar, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := db.GetPriceDataBefore(ctx, prices.NormalizeTicker(ticker), before, n)
	if err != nil {
		return nil, err
	}
	return toBars(rows), nil
}

func toBar(p *models.PriceDataDaily) prices.Bar {
	return prices.Bar{
		Date:  dates.Normalize(p.Date),
		Open:  p.Open.InexactFloat64(),
		Close: p.Close.InexactFloat64(),
	}
}

func toBars(rows []*models.PriceDataDaily) []prices.Bar {
	bars := make([]prices.Bar, 0, len(rows))
	for _, p := range rows {
		bars = append(bars, toBar(p))
	}
	return bars
}
