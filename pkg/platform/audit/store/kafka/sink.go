// Package kafka publishes audit events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/store/postgres"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink implements audit.Store by producing one record per event, keyed by
// subject so events about one account stay ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
}

func NewSink(producer Producer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

// NewClient builds a franz-go client for brokers.
func NewClient(brokers []string, clientID string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	event.Normalize(time.Now())
	body, err := json.Marshal(postgres.ToPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	return s.Publish(ctx, event.Subject, body, event.Category)
}

// Publish produces a pre-encoded payload.
func (s *Sink) Publish(ctx context.Context, key string, payload []byte, category audit.EventCategory) error {
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(category)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}
