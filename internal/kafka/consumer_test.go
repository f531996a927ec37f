package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/portfolio"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

type mockRepo struct {
	mu     sync.Mutex
	seen   map[string]bool
	checks int
}

func (m *mockRepo) TransactionExistsByEventID(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	return m.seen[eventID], nil
}

type mockReader struct {
	cfg  kafka.ReaderConfig
	msgs chan kafka.Message

	mu         sync.Mutex
	closeCalls int
}

func newMockReader(topic string, buffer int) *mockReader {
	return &mockReader{
		cfg:  kafka.ReaderConfig{Topic: topic},
		msgs: make(chan kafka.Message, buffer),
	}
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *mockReader) Close() error {
	r.mu.Lock()
	r.closeCalls++
	r.mu.Unlock()
	return nil
}

func (r *mockReader) Config() kafka.ReaderConfig {
	return r.cfg
}

func newTestManager(t *testing.T) *portfolio.Manager {
	t.Helper()
	today := dates.New(2024, 6, 1)
	m := portfolio.NewManager(prices.NewSeries(), portfolio.WithClock(func() time.Time { return today }))
	_, err := m.Create(context.Background(), "alice", "growth")
	require.NoError(t, err)
	return m
}

func command(t *testing.T, eventID, eventType, symbol, shares, date string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(models.TransactionEvent{
		EventID:   eventID,
		EventType: eventType,
		Source:    "broker",
		Data: models.TransactionEventData{
			Owner:     "alice",
			Portfolio: "growth",
			Symbol:    symbol,
			Shares:    shares,
			Date:      date,
		},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("alice/growth"), Value: payload}
}

func TestConsumer_processMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("buy and sell commands update the portfolio", func(t *testing.T) {
		m := newTestManager(t)
		consumer := &Consumer{repo: &mockRepo{}, trader: m}

		require.NoError(t, consumer.processMessage(ctx, command(t, "evt-1", "BUY", "aapl", "10", "2024-01-10")))
		require.NoError(t, consumer.processMessage(ctx, command(t, "evt-2", "sell", "AAPL", "2.5", "2024-01-11")))

		p, err := m.Get("alice", "growth")
		require.NoError(t, err)
		assert.Equal(t, 7.5, p.CompositionAt(dates.New(2024, 1, 11))["AAPL"])
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		repo := &mockRepo{}
		consumer := &Consumer{repo: repo, trader: newTestManager(t)}

		require.NoError(t, consumer.processMessage(ctx, command(t, "evt-1", models.EventTransactionRecorded, "AAPL", "1", "2024-01-10")))
		assert.Zero(t, repo.checks)
	})

	t.Run("recorded events are skipped", func(t *testing.T) {
		m := newTestManager(t)
		consumer := &Consumer{repo: &mockRepo{seen: map[string]bool{"evt-1": true}}, trader: m}

		require.NoError(t, consumer.processMessage(ctx, command(t, "evt-1", "BUY", "AAPL", "10", "2024-01-10")))

		p, err := m.Get("alice", "growth")
		require.NoError(t, err)
		assert.Empty(t, p.CompositionAt(dates.New(2024, 1, 10)))
	})

	t.Run("rejected trades surface as errors", func(t *testing.T) {
		consumer := &Consumer{repo: &mockRepo{}, trader: newTestManager(t)}

		err := consumer.processMessage(ctx, command(t, "evt-1", "SELL", "AAPL", "1", "2024-01-10"))
		assert.Error(t, err)
	})

	t.Run("malformed payloads are rejected", func(t *testing.T) {
		consumer := &Consumer{repo: &mockRepo{}, trader: newTestManager(t)}

		assert.Error(t, consumer.processMessage(ctx, kafka.Message{Value: []byte("{")}))
		assert.Error(t, consumer.processMessage(ctx, command(t, "evt-1", "BUY", "AAPL", "ten", "2024-01-10")))
		assert.Error(t, consumer.processMessage(ctx, command(t, "evt-1", "BUY", "AAPL", "1", "01/10/2024")))
	})
}

func TestConsumer_Start_consumesUntilCancelled(t *testing.T) {
	m := newTestManager(t)
	repo := &mockRepo{}
	reader := newMockReader("portfolio-commands", 2)
	consumer := &Consumer{reader: reader, repo: repo, trader: m}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	reader.msgs <- command(t, "evt-1", "BUY", "AAPL", "3", "2024-01-10")
	reader.msgs <- command(t, "evt-2", "SELL", "AAPL", "99", "2024-01-10")

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.checks == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumer to shut down")
	}

	p, err := m.Get("alice", "growth")
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.CompositionAt(dates.New(2024, 1, 10))["AAPL"])
	assert.Equal(t, 1, reader.closeCalls)
}
