package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/portfolio"
)

// TransactionRepository reports which events were already recorded
type TransactionRepository interface {
	TransactionExistsByEventID(ctx context.Context, eventID string) (bool, error)
}

// Trader applies trade commands to portfolios
type Trader interface {
	Buy(ctx context.Context, o portfolio.Order) (*models.Transaction, error)
	Sell(ctx context.Context, o portfolio.Order) (*models.Transaction, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// Consumer applies BUY and SELL commands read from Kafka. Commands the ledger
// rejects are logged and skipped.
type Consumer struct {
	reader messageReader
	repo   TransactionRepository
	trader Trader
}

// NewConsumer creates a new Kafka consumer for trade commands
func NewConsumer(brokers []string, topic, groupID string, repo TransactionRepository, trader Trader) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		repo:   repo,
		trader: trader,
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	log.Info("starting kafka consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			log.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				log.Error("failed to read message", zap.Error(err))
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Warn("failed to process message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Debug("received message",
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.String("key", string(msg.Key)),
	)

	var event models.TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal transaction event: %w", err)
	}

	eventType := strings.ToUpper(event.EventType)
	if eventType != models.EventBuy && eventType != models.EventSell {
		log.Debug("ignoring event type", zap.String("event_type", event.EventType))
		return nil
	}

	if event.EventID != "" {
		exists, err := c.repo.TransactionExistsByEventID(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate event: %w", err)
		}
		if exists {
			log.Info("event already recorded, skipping", zap.String("event_id", event.EventID))
			return nil
		}
	}

	order, err := toOrder(event)
	if err != nil {
		return err
	}

	var tx *models.Transaction
	if eventType == models.EventBuy {
		tx, err = c.trader.Buy(ctx, order)
	} else {
		tx, err = c.trader.Sell(ctx, order)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s %s to %s/%s: %w", eventType, order.Symbol, order.Owner, order.Portfolio, err)
	}

	log.Info("applied trade command",
		zap.String("event_id", tx.EventID),
		zap.String("side", tx.Side),
		zap.String("symbol", tx.Symbol),
		zap.String("shares", tx.Shares.String()),
	)
	return nil
}

// toOrder maps a command to an order. Shares travel as decimal strings.
func toOrder(event models.TransactionEvent) (portfolio.Order, error) {
	data := event.Data

	shares, err := decimal.NewFromString(data.Shares)
	if err != nil {
		return portfolio.Order{}, fmt.Errorf("invalid shares %q: %w", data.Shares, err)
	}

	date, err := dates.Parse(data.Date)
	if err != nil {
		return portfolio.Order{}, err
	}

	return portfolio.Order{
		EventID:   event.EventID,
		Owner:     data.Owner,
		Portfolio: data.Portfolio,
		Symbol:    data.Symbol,
		Shares:    shares.InexactFloat64(),
		Date:      date,
		Source:    models.SourceKafka,
	}, nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
