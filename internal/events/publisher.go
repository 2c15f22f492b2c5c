package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher announces committed redemptions on a Kafka topic. Messages are
// keyed by user id so one user's redemptions stay ordered.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// NewKafkaPublisher builds a Publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return NewPublisher(w)
}

// PublishRedemption writes one event. The redemption has already committed,
// so callers treat a failure here as a lost notification, not a lost redemption.
func (p *Publisher) PublishRedemption(ctx context.Context, ev model.RedemptionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal redemption event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "reward_kind", Value: []byte(ev.RewardKind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce redemption event: %w", err)
	}

	log.Debug().
		Int64("group_id", ev.GroupID).
		Int64("user_id", ev.UserID).
		Str("code", ev.Code).
		Msg("redemption event published")
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
