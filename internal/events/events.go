// Package events publishes ledger notifications for downstream consumers.
// Publishing is best effort and never part of an atomic unit.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"payout-ledger/internal/config"
)

// Event types.
const (
	TypePayoutBatchCompleted = "payout.batch_completed"
	TypePurchaseCreated      = "purchase.created"
	TypeReferralBonusPaid    = "referral.bonus_paid"
)

// Event is one ledger notification.
type Event struct {
	Type       string         `json:"type"`
	AccountID  int64          `json:"account_id,omitempty"`
	Amount     int64          `json:"amount,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled() {
		log.Info().Msg("Kafka not configured, ledger events disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// KafkaPublisher writes events as JSON to one topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates an asynchronous Kafka publisher.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("count", len(messages)).Msg("Failed to deliver ledger events")
			}
		},
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafka publisher initialized")

	return &KafkaPublisher{writer: writer}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	log.Info().Msg("Closing Kafka publisher")
	return p.writer.Close()
}

// encode keys messages by account so one account's events stay ordered.
func encode(e Event) (kafka.Message, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := e.Type
	if e.AccountID != 0 {
		key = fmt.Sprintf("account_%d", e.AccountID)
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  e.OccurredAt,
	}, nil
}
