package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaRelay mirrors locally published events to a topic so that other
// server instances can deliver them to their own subscribers.
type KafkaRelay struct {
	writer *kafka.Writer
	reader *kafka.Reader
	origin string
}

// NewKafkaRelay creates a relay for this instance. Every instance reads the
// whole topic under its own consumer group.
func NewKafkaRelay(brokers []string, topic, groupPrefix, origin string) *KafkaRelay {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				zlog.Warn().Err(err).Int("messages", len(messages)).Msg("kafka relay write failed")
			}
		},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupPrefix + "-" + origin,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaRelay{
		writer: writer,
		reader: reader,
		origin: origin,
	}
}

// Origin is the instance id stamped on outgoing events.
func (k *KafkaRelay) Origin() string {
	return k.origin
}

// Publish hands the event to the async writer. Keys are room ids so that
// one room's events stay on one partition.
func (k *KafkaRelay) Publish(ctx context.Context, ev Event) error {
	ev.Origin = k.origin
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: value,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Consume reads events until ctx is cancelled, calling handler for every
// event that originated on another instance.
func (k *KafkaRelay) Consume(ctx context.Context, handler func(Event)) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			zlog.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping malformed relay event")
			continue
		}
		if ev.Origin == k.origin {
			continue
		}
		handler(ev)
	}
}

func (k *KafkaRelay) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
