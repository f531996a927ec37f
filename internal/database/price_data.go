package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
)

// ErrPriceDataNotFound is returned when no bar is stored for a symbol and date
var ErrPriceDataNotFound = errors.New("price data not found")

const priceColumns = `id, symbol, date, open, high, low, close, volume, created_at`

const upsertPriceData = `
	INSERT INTO price_data_daily (symbol, date, open, high, low, close, volume, created_at)
	VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (symbol, date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume
`

// CreatePriceData inserts a price data record, replacing the bar of the same
// symbol and date
func (db *DB) CreatePriceData(ctx context.Context, p *models.PriceDataDaily) error {
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, upsertPriceData+` RETURNING id`,
		p.Symbol, dates.Format(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume, now,
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to create price data: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// CreatePriceDataBatch inserts multiple price data records in one transaction
func (db *DB) CreatePriceDataBatch(ctx context.Context, prices []*models.PriceDataDaily) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPriceData)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range prices {
		_, err := stmt.ExecContext(ctx, p.Symbol, dates.Format(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume, now)
		if err != nil {
			return fmt.Errorf("failed to insert price data for %s on %s: %w", p.Symbol, dates.Format(p.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPriceDataBySymbolAndDate retrieves price data for a specific symbol and date
func (db *DB) GetPriceDataBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (*models.PriceDataDaily, error) {
	query := `SELECT ` + priceColumns + `
		FROM price_data_daily
		WHERE symbol = $1 AND date = $2::date
	`
	p, err := scanPriceData(db.conn.QueryRowContext(ctx, query, symbol, dates.Format(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s on %s: %w", symbol, dates.Format(date), ErrPriceDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price data: %w", err)
	}
	return p, nil
}

// GetPriceDataRange retrieves price data for a symbol within a date range,
// oldest first
func (db *DB) GetPriceDataRange(ctx context.Context, symbol string, startDate, endDate time.Time) ([]*models.PriceDataDaily, error) {
	query := `SELECT ` + priceColumns + `
		FROM price_data_daily
		WHERE symbol = $1 AND date >= $2::date AND date <= $3::date
		ORDER BY date ASC
	`
	return db.queryPriceData(ctx, query, symbol, dates.Format(startDate), dates.Format(endDate))
}

// GetPriceDataBefore retrieves up to limit bars strictly before date, oldest first
func (db *DB) GetPriceDataBefore(ctx context.Context, symbol string, before time.Time, limit int) ([]*models.PriceDataDaily, error) {
	query := `SELECT ` + priceColumns + `
		FROM price_data_daily
		WHERE symbol = $1 AND date < $2::date
		ORDER BY date DESC
		LIMIT $3
	`
	prices, err := db.queryPriceData(ctx, query, symbol, dates.Format(before), limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
		prices[i], prices[j] = prices[j], prices[i]
	}
	return prices, nil
}

// DeletePriceDataBySymbol removes all price data for a symbol
func (db *DB) DeletePriceDataBySymbol(ctx context.Context, symbol string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_data_daily WHERE symbol = $1`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to delete price data for %s: %w", symbol, err)
	}
	return result.RowsAffected()
}

func (db *DB) queryPriceData(ctx context.Context, query string, args ...any) ([]*models.PriceDataDaily, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get price data: %w", err)
	}
	defer rows.Close()

	var prices []*models.PriceDataDaily
	for rows.Next() {
		p, err := scanPriceData(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price data: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price data: %w", err)
	}
	return prices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPriceData(row scanner) (*models.PriceDataDaily, error) {
	var p models.PriceDataDaily
	err := row.Scan(&p.ID, &p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Date = dates.Normalize(p.Date)
	return &p, nil
}
