package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Karunakar20/dino-ventures/internal/events"
	"github.com/segmentio/kafka-go"
)

// Publisher writes committed-transaction events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) PublishTransactionCommitted(ctx context.Context, event events.TransactionCommitted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionID.String()),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
