package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ecofin/internal/config"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by entity id.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(e.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
		Time: e.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to kafka: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
