package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes entries as JSON, keyed by correlation id so that all
// entries of one transaction land on the same partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("auditlog: encode entry %s: %w", e.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(e.CorrelationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "psp", Value: []byte(e.PSPName)},
			{Key: "direction", Value: []byte(e.Direction)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("auditlog: publish entry %s: %w", e.ID, err)
	}
	return nil
}
