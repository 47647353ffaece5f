package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, topic, groupID string, auth Auth) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	rCfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		Dialer:   auth.dialer(),
		MinBytes: 1,
		MaxBytes: 10e6, // 10mb
		MaxWait:  500 * time.Millisecond,
		// A new group starts from the oldest retained reaction; replays are
		// harmless because recording the same response twice is a no-op.
		StartOffset: kafka.FirstOffset,
	}
	r := kafka.NewReader(rCfg)

	return &KafkaConsumer{reader: r}, nil
}

// ReadReaction blocks until the next reaction arrives or ctx is cancelled.
// Undecodable messages are returned as ErrMalformedEvent.
func (kc *KafkaConsumer) ReadReaction(ctx context.Context) (model.ReactionEvent, error) {
	msg, err := kc.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return model.ReactionEvent{}, err
		}
		return model.ReactionEvent{}, fmt.Errorf("error reading reaction from kafka: %w", err)
	}

	var ev model.ReactionEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset}).
			WithError(err).Warn("error deserializing reaction")
		return model.ReactionEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	return ev, nil
}

func (kc *KafkaConsumer) Close() error {
	if err := kc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
