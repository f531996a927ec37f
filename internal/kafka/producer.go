package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing portfolio events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTransactionRecorded publishes a recorded buy or sell. Events of one
// portfolio share a key so consumers see them in order.
func (p *Producer) PublishTransactionRecorded(ctx context.Context, tx *models.Transaction) error {
	event := models.TransactionEvent{
		EventID:   tx.EventID,
		EventType: models.EventTransactionRecorded,
		Source:    tx.Source,
		Data: models.TransactionEventData{
			Owner:     tx.Owner,
			Portfolio: tx.Portfolio,
			Symbol:    tx.Symbol,
			Side:      tx.Side,
			Shares:    tx.Shares.String(),
			Date:      dates.Format(tx.TradeDate),
		},
		Timestamp: time.Now(),
	}
	return p.publish(ctx, tx.Owner+"/"+tx.Portfolio, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.TransactionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
