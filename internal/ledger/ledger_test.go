package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
)

var today = dates.New(2024, 6, 1)

func newLedger() *Ledger {
	return New(WithClock(func() time.Time { return today }))
}

func TestBuy(t *testing.T) {
	t.Run("out of order buy propagates forward", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("AAPL", 10, dates.New(2023, 3, 9)))
		require.NoError(t, l.Buy("AAPL", 20, dates.New(2023, 2, 9)))

		assert.Equal(t, "20.000", l.CompositionAt(dates.New(2023, 2, 9)).Format()["AAPL"])
		assert.Equal(t, "30.000", l.CompositionAt(dates.New(2023, 3, 9)).Format()["AAPL"])
		assert.Equal(t, 30.0, l.NetShares("AAPL"))
	})

	t.Run("later snapshots keep earlier buys", func(t *testing.T) {
		l := newLedger()
		d1 := dates.New(2024, 1, 10)
		d2 := dates.New(2024, 2, 10)
		require.NoError(t, l.Buy("MSFT", 1, d2))
		require.NoError(t, l.Buy("AAPL", 7.5, d1))

		assert.Equal(t, l.CompositionAt(d1)["AAPL"], l.CompositionAt(d2)["AAPL"])
		assert.Equal(t, 1.0, l.CompositionAt(d2)["MSFT"])
		assert.NotContains(t, l.CompositionAt(d1), "MSFT")
	})

	t.Run("same date buys accumulate", func(t *testing.T) {
		l := newLedger()
		d := dates.New(2024, 1, 10)
		require.NoError(t, l.Buy("aapl", 1, d))
		require.NoError(t, l.Buy("AAPL", 2, d))

		assert.Equal(t, Composition{"AAPL": 3}, l.CompositionAt(d))
		assert.Len(t, l.Dates(), 1)
	})

	t.Run("validation", func(t *testing.T) {
		l := newLedger()
		d := dates.New(2024, 1, 10)

		err := l.Buy("AAPL", 0, d)
		assert.ErrorIs(t, err, ErrInvalidShares)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		assert.ErrorIs(t, l.Buy("AAPL", -1, d), ErrInvalidShares)
		assert.ErrorIs(t, l.Buy(" ", 1, d), ErrInvalidTicker)
		assert.ErrorIs(t, l.Buy("AAPL", 1, today.AddDate(0, 0, 1)), ErrFutureDate)
		assert.NoError(t, l.Buy("AAPL", 1, today))
	})
}

func TestSell(t *testing.T) {
	d := dates.New(2024, 1, 10)

	t.Run("buy then sell restores the composition", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("MSFT", 4, d))
		before := l.CompositionAt(d)

		require.NoError(t, l.Buy("AAPL", 5, d))
		require.NoError(t, l.Sell("AAPL", 5, d))

		assert.Equal(t, before, l.CompositionAt(d))
		assert.Zero(t, l.NetShares("AAPL"))
	})

	t.Run("selling more than net shares is rejected", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("AAPL", 10, d))

		err := l.Sell("AAPL", 20, d)
		assert.ErrorIs(t, err, ErrInsufficientShares)
		assert.ErrorIs(t, err, apperr.ErrConsistency)
		assert.Equal(t, 10.0, l.NetShares("AAPL"))
		assert.Equal(t, 10.0, l.CompositionAt(d)["AAPL"])
	})

	t.Run("sell before the first buy is rejected without mutation", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("AAPL", 10, d))
		snaps := l.Snapshots(today)

		err := l.Sell("AAPL", 5, dates.New(2024, 1, 1))
		assert.ErrorIs(t, err, ErrNotDepleted)
		assert.Equal(t, InsufficientAtDate, l.CanSell("AAPL", 5, dates.New(2024, 1, 1)))
		assert.Equal(t, snaps, l.Snapshots(today))
		assert.Equal(t, 10.0, l.NetShares("AAPL"))
	})

	t.Run("sell that would overdraw a later snapshot is rejected", func(t *testing.T) {
		l := newLedger()
		d1 := dates.New(2024, 1, 1)
		d2 := dates.New(2024, 2, 1)
		d3 := dates.New(2024, 3, 1)
		d4 := dates.New(2024, 4, 1)
		require.NoError(t, l.Buy("AAPL", 10, d1))
		require.NoError(t, l.Buy("MSFT", 1, d3))
		require.NoError(t, l.Sell("AAPL", 8, d3))
		require.NoError(t, l.Buy("AAPL", 5, d4))
		require.Equal(t, 2.0, l.CompositionAt(d3)["AAPL"])
		require.Equal(t, 7.0, l.NetShares("AAPL"))
		snaps := l.Snapshots(today)

		// net shares allow it but d3 would drop below zero
		assert.Equal(t, OverdrawsLater, l.CanSell("AAPL", 3, d2))
		err := l.Sell("AAPL", 3, d2)
		assert.ErrorIs(t, err, ErrOverdrawsLater)
		assert.Equal(t, snaps, l.Snapshots(today))
		assert.Equal(t, 7.0, l.NetShares("AAPL"))
	})

	t.Run("depletion walks most recent first", func(t *testing.T) {
		l := newLedger()
		d1 := dates.New(2024, 1, 1)
		d2 := dates.New(2024, 2, 1)
		d3 := dates.New(2024, 3, 1)
		require.NoError(t, l.Buy("AAPL", 10, d1))
		require.NoError(t, l.Buy("MSFT", 1, d2))
		require.NoError(t, l.Sell("AAPL", 4, d2))

		assert.Equal(t, 10.0, l.CompositionAt(d1)["AAPL"])
		assert.Equal(t, 6.0, l.CompositionAt(d2)["AAPL"])

		// a backdated buy lifts later snapshots and the net total above the d2 row
		require.NoError(t, l.Buy("AAPL", 1, d3))
		require.NoError(t, l.Sell("AAPL", 7, d2))
		assert.NotContains(t, l.CompositionAt(d2), "AAPL")
		assert.Equal(t, 9.0, l.CompositionAt(d1)["AAPL"])
		assert.NotContains(t, l.CompositionAt(d3), "AAPL")
		assert.Equal(t, Depleted, l.CanSell("MSFT", 1, d3))
	})

	t.Run("fully sold ticker is filtered from composition", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("AAPL", 3, d))
		require.NoError(t, l.Sell("AAPL", 3, d))

		assert.Empty(t, l.CompositionAt(d))
		assert.Equal(t, []string{"AAPL"}, l.Tickers())
		assert.Equal(t, 0.0, l.Snapshots(d)[0].Shares("AAPL"))
	})

	t.Run("validation", func(t *testing.T) {
		l := newLedger()
		assert.ErrorIs(t, l.Sell("AAPL", 0, d), ErrInvalidShares)
		assert.ErrorIs(t, l.Sell("AAPL", 1, today.AddDate(0, 0, 2)), ErrFutureDate)
	})
}

func TestCompositionAt(t *testing.T) {
	t.Run("empty ledger", func(t *testing.T) {
		l := newLedger()
		assert.Empty(t, l.CompositionAt(today))
		assert.True(t, l.Empty())
	})

	t.Run("date before every record yields the earliest snapshot", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("AAPL", 2, dates.New(2024, 1, 10)))
		assert.Equal(t, Composition{"AAPL": 2}, l.CompositionAt(dates.New(2020, 1, 1)))
	})

	t.Run("querying twice yields identical results", func(t *testing.T) {
		l := newLedger()
		require.NoError(t, l.Buy("AAPL", 2, dates.New(2024, 1, 10)))
		require.NoError(t, l.Buy("GOOGL", 1.23456, dates.New(2024, 1, 12)))

		q := dates.New(2024, 1, 11)
		assert.Equal(t, l.CompositionAt(q), l.CompositionAt(q))
		assert.Equal(t, map[string]string{"AAPL": "2.000", "GOOGL": "1.235"}, l.CompositionAt(today).Format())
	})

	t.Run("returned composition is a copy", func(t *testing.T) {
		l := newLedger()
		d := dates.New(2024, 1, 10)
		require.NoError(t, l.Buy("AAPL", 2, d))

		c := l.CompositionAt(d)
		c["AAPL"] = 100
		assert.Equal(t, 2.0, l.CompositionAt(d)["AAPL"])
	})
}

func TestClone(t *testing.T) {
	l := newLedger()
	d := dates.New(2024, 1, 10)
	require.NoError(t, l.Buy("AAPL", 2, d))

	c := l.Clone()
	require.NoError(t, c.Buy("AAPL", 3, d))
	require.NoError(t, c.Buy("MSFT", 1, dates.New(2024, 1, 11)))

	assert.Equal(t, Composition{"AAPL": 2}, l.CompositionAt(today))
	assert.Equal(t, 2.0, l.NetShares("AAPL"))
	assert.Len(t, l.Dates(), 1)
	assert.Equal(t, Composition{"AAPL": 5, "MSFT": 1}, c.CompositionAt(today))
}

func TestSellOutcomeString(t *testing.T) {
	assert.Equal(t, "Depleted", Depleted.String())
	assert.Equal(t, "OverdrawsLater", OverdrawsLater.String())
	assert.Equal(t, "SellOutcome(9)", SellOutcome(9).String())
}
