package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

const transactionColumns = `id, event_id, owner, portfolio, symbol, side, shares, trade_date, source, created_at`

// CreatePortfolio inserts a declared portfolio together with its initial
// holdings, atomically. A duplicate (owner, name) is reported as
// apperr.ErrConflict.
func (db *DB) CreatePortfolio(ctx context.Context, p *models.Portfolio, holdings []*models.Transaction) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO portfolios (owner, name, fixed, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	now := time.Now()

	var id int64
	err = tx.QueryRowContext(ctx, query, p.Owner, p.Name, p.Fixed, now).Scan(&id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: portfolio %s/%s already exists", apperr.ErrConflict, p.Owner, p.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	ids, err := insertTransactions(ctx, tx, holdings, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.ID = id
	p.CreatedAt = now
	stamp(holdings, ids, now)
	return nil
}

// ListPortfolios retrieves every declared portfolio in creation order
func (db *DB) ListPortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, owner, name, fixed, created_at FROM portfolios ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var ports []*models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.Owner, &p.Name, &p.Fixed, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		ports = append(ports, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate portfolios: %w", err)
	}
	return ports, nil
}

// RecordTransactions inserts a batch of transactions atomically. A duplicate
// event ID fails the whole batch with apperr.ErrConflict.
func (db *DB) RecordTransactions(ctx context.Context, txs []*models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	ids, err := insertTransactions(ctx, tx, txs, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	stamp(txs, ids, now)
	return nil
}

// insertTransactions inserts txs within tx and returns their IDs.
func insertTransactions(ctx context.Context, tx *sql.Tx, txs []*models.Transaction, now time.Time) ([]int64, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolio_transactions (
			event_id, owner, portfolio, symbol, side, shares, trade_date, source, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::date, $8, $9
		)
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(txs))
	for i, t := range txs {
		err := stmt.QueryRowContext(ctx,
			t.EventID, t.Owner, t.Portfolio, t.Symbol, t.Side, t.Shares,
			dates.Format(t.TradeDate), t.Source, now,
		).Scan(&ids[i])
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: event %s already recorded", apperr.ErrConflict, t.EventID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record transaction %s: %w", t.EventID, err)
		}
	}
	return ids, nil
}

func stamp(txs []*models.Transaction, ids []int64, now time.Time) {
	for i, t := range txs {
		t.ID = ids[i]
		t.CreatedAt = now
	}
}

// TransactionExistsByEventID checks if a transaction with the given event ID
// was already recorded
func (db *DB) TransactionExistsByEventID(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM portfolio_transactions WHERE event_id = $1)`
	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// ListTransactions retrieves the whole journal in insertion order
func (db *DB) ListTransactions(ctx context.Context) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM portfolio_transactions
		ORDER BY id ASC
	`
	return db.queryTransactions(ctx, query)
}

// GetTransactionsByPortfolio retrieves the journal of one portfolio in
// insertion order
func (db *DB) GetTransactionsByPortfolio(ctx context.Context, owner, name string) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM portfolio_transactions
		WHERE owner = $1 AND portfolio = $2
		ORDER BY id ASC
	`
	return db.queryTransactions(ctx, query, owner, name)
}

func (db *DB) queryTransactions(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(
			&t.ID, &t.EventID, &t.Owner, &t.Portfolio, &t.Symbol, &t.Side, &t.Shares,
			&t.TradeDate, &t.Source, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.TradeDate = dates.Normalize(t.TradeDate)
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
