package database

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
)

func newTransaction(eventID, side string, shares float64) *models.Transaction {
	return &models.Transaction{
		EventID:   eventID,
		Owner:     "alice",
		Portfolio: "growth",
		Symbol:    "AAPL",
		Side:      side,
		Shares:    decimal.NewFromFloat(shares),
		TradeDate: dates.New(2024, 1, 15),
		Source:    models.SourceAPI,
	}
}

func TestTransactionJournal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	createPortfolio := func(t *testing.T) {
		t.Helper()
		require.NoError(t, testDB.CreatePortfolio(ctx, &models.Portfolio{Owner: "alice", Name: "growth"}, nil))
	}

	t.Run("CreatePortfolio rejects duplicates", func(t *testing.T) {
		testDB.TruncateAll(t)

		p := &models.Portfolio{Owner: "alice", Name: "growth"}
		require.NoError(t, testDB.CreatePortfolio(ctx, p, nil))
		assert.NotZero(t, p.ID)

		err := testDB.CreatePortfolio(ctx, &models.Portfolio{Owner: "alice", Name: "growth"}, nil)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		require.NoError(t, testDB.CreatePortfolio(ctx, &models.Portfolio{Owner: "bob", Name: "growth"}, nil))
		ports, err := testDB.ListPortfolios(ctx)
		require.NoError(t, err)
		require.Len(t, ports, 2)
		assert.Equal(t, "alice", ports[0].Owner)
		assert.Equal(t, "bob", ports[1].Owner)
	})

	t.Run("CreatePortfolio stores a fixed portfolio with its holdings", func(t *testing.T) {
		testDB.TruncateAll(t)

		holdings := []*models.Transaction{
			newTransaction("evt-1", models.SideBuy, 10),
			newTransaction("evt-2", models.SideBuy, 5),
		}
		holdings[1].Symbol = "MSFT"
		p := &models.Portfolio{Owner: "alice", Name: "growth", Fixed: true}
		require.NoError(t, testDB.CreatePortfolio(ctx, p, holdings))
		assert.NotZero(t, holdings[0].ID)

		ports, err := testDB.ListPortfolios(ctx)
		require.NoError(t, err)
		require.Len(t, ports, 1)
		assert.True(t, ports[0].Fixed)

		stored, err := testDB.GetTransactionsByPortfolio(ctx, "alice", "growth")
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "MSFT", stored[1].Symbol)
	})

	t.Run("CreatePortfolio leaves nothing behind when a holding fails", func(t *testing.T) {
		testDB.TruncateAll(t)

		err := testDB.CreatePortfolio(ctx, &models.Portfolio{Owner: "alice", Name: "growth", Fixed: true}, []*models.Transaction{
			newTransaction("evt-1", models.SideBuy, 1),
			newTransaction("evt-1", models.SideBuy, 1),
		})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		ports, err := testDB.ListPortfolios(ctx)
		require.NoError(t, err)
		assert.Empty(t, ports)
	})

	t.Run("RecordTransactions stores a batch in order", func(t *testing.T) {
		testDB.TruncateAll(t)
		createPortfolio(t)

		txs := []*models.Transaction{
			newTransaction("evt-1", models.SideBuy, 10),
			newTransaction("evt-2", models.SideSell, 2.5),
		}
		require.NoError(t, testDB.RecordTransactions(ctx, txs))
		assert.NotZero(t, txs[0].ID)
		assert.Greater(t, txs[1].ID, txs[0].ID)

		stored, err := testDB.ListTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "evt-1", stored[0].EventID)
		assert.True(t, decimal.NewFromFloat(2.5).Equal(stored[1].Shares))
		assert.Equal(t, dates.New(2024, 1, 15), stored[1].TradeDate)
	})

	t.Run("RecordTransactions is atomic", func(t *testing.T) {
		testDB.TruncateAll(t)
		createPortfolio(t)

		require.NoError(t, testDB.RecordTransactions(ctx, []*models.Transaction{newTransaction("evt-1", models.SideBuy, 1)}))

		err := testDB.RecordTransactions(ctx, []*models.Transaction{
			newTransaction("evt-2", models.SideBuy, 1),
			newTransaction("evt-1", models.SideBuy, 1),
		})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		exists, err := testDB.TransactionExistsByEventID(ctx, "evt-2")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("TransactionExistsByEventID", func(t *testing.T) {
		testDB.TruncateAll(t)
		createPortfolio(t)

		require.NoError(t, testDB.RecordTransactions(ctx, []*models.Transaction{newTransaction("evt-9", models.SideBuy, 1)}))

		exists, err := testDB.TransactionExistsByEventID(ctx, "evt-9")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("GetTransactionsByPortfolio filters by owner and name", func(t *testing.T) {
		testDB.TruncateAll(t)
		createPortfolio(t)
		require.NoError(t, testDB.CreatePortfolio(ctx, &models.Portfolio{Owner: "alice", Name: "income"}, nil))

		other := newTransaction("evt-2", models.SideBuy, 3)
		other.Portfolio = "income"
		require.NoError(t, testDB.RecordTransactions(ctx, []*models.Transaction{
			newTransaction("evt-1", models.SideBuy, 1),
			other,
		}))

		txs, err := testDB.GetTransactionsByPortfolio(ctx, "alice", "income")
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "evt-2", txs[0].EventID)
	})
}
