// Package importer reads daily price files into price rows.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

// ReadDailyCSV parses a daily time series with the columns
// timestamp,open,high,low,close,volume. The first line is a header. Rows with
// fewer than six fields are skipped.
func ReadDailyCSV(r io.Reader, symbol string) ([]*models.PriceDataDaily, error) {
	symbol = prices.NormalizeTicker(symbol)
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rows []*models.PriceDataDaily
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 6 {
			continue
		}

		row, err := parseRecord(symbol, record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(symbol string, record []string) (*models.PriceDataDaily, error) {
	date, err := dates.Parse(strings.TrimSpace(record[0]))
	if err != nil {
		return nil, err
	}

	var ohlc [4]decimal.Decimal
	for i := range ohlc {
		ohlc[i], err = decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", record[i+1], err)
		}
	}

	volume, err := strconv.ParseInt(strings.TrimSpace(record[5]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid volume %q: %w", record[5], err)
	}

	return &models.PriceDataDaily{
		Symbol: symbol,
		Date:   date,
		Open:   ohlc[0],
		High:   ohlc[1],
		Low:    ohlc[2],
		Close:  ohlc[3],
		Volume: volume,
	}, nil
}
