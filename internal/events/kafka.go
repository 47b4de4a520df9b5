package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by project id, so all events
// of one project land on the same partition.
type Kafka struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafka returns a publisher writing to topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		timeout: 5 * time.Second,
	}
}

// PublishGoalCompleted implements Publisher.
func (k *Kafka) PublishGoalCompleted(ctx context.Context, ev GoalCompleted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode goal completed: %w", err)
	}
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.ProjectID), 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("goal.completed")},
		},
		Time: ev.CompletedDate,
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error { return k.w.Close() }
