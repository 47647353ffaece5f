package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

// KafkaPublisher writes JSON messages to one topic. Messages are keyed by
// message ref so every action for one poll lands on the same partition and
// keeps its order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, auth Auth) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
		Compression:  kafka.Snappy,
		Transport:    auth.transport(),
	}

	return &KafkaPublisher{writer: w}, nil
}

// Send publishes a chat action for the transport bridge.
func (kp *KafkaPublisher) Send(ctx context.Context, action model.ChatAction) error {
	key := action.MessageRef
	if key == "" {
		key = action.ReplyTo
	}
	return kp.publish(ctx, key, action)
}

// PublishReaction is used by the simulator to feed the reconciler.
func (kp *KafkaPublisher) PublishReaction(ctx context.Context, ev model.ReactionEvent) error {
	return kp.publish(ctx, ev.MessageRef, ev)
}

func (kp *KafkaPublisher) publish(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: b,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
