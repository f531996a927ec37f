package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
)

type mockWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

func TestProducer_PublishTransactionRecorded(t *testing.T) {
	tx := &models.Transaction{
		EventID:   "evt-1",
		Owner:     "alice",
		Portfolio: "growth",
		Symbol:    "AAPL",
		Side:      models.SideSell,
		Shares:    decimal.RequireFromString("1.5"),
		TradeDate: dates.New(2024, 1, 10),
		Source:    models.SourceAPI,
	}

	t.Run("writes a keyed event", func(t *testing.T) {
		w := &mockWriter{}
		p := &Producer{writer: w, topic: "portfolio-events"}

		require.NoError(t, p.PublishTransactionRecorded(context.Background(), tx))
		require.Len(t, w.msgs, 1)
		assert.Equal(t, "alice/growth", string(w.msgs[0].Key))

		var event models.TransactionEvent
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
		assert.Equal(t, models.EventTransactionRecorded, event.EventType)
		assert.Equal(t, "evt-1", event.EventID)
		assert.Equal(t, models.TransactionEventData{
			Owner:     "alice",
			Portfolio: "growth",
			Symbol:    "AAPL",
			Side:      models.SideSell,
			Shares:    "1.5",
			Date:      "2024-01-10",
		}, event.Data)
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		boom := errors.New("broker unavailable")
		p := &Producer{writer: &mockWriter{err: boom}}

		assert.ErrorIs(t, p.PublishTransactionRecorded(context.Background(), tx), boom)
	})
}
