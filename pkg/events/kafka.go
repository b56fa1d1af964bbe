package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultDeliveryTimeout bounds how long a buffered event is retried.
const DefaultDeliveryTimeout = 30 * time.Second

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// DeliveryTimeout defaults to DefaultDeliveryTimeout.
	DeliveryTimeout time.Duration

	Logger hclog.Logger
}

// producer is the part of *kgo.Client the publisher uses.
type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// Kafka publishes events to a Kafka (or Redpanda) topic. Publish only
// buffers the record; delivery failures are logged when they happen.
type Kafka struct {
	client producer
	topic  string
	logger hclog.Logger
}

// NewKafka creates a Kafka publisher.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),

		// Wait for all in-sync replicas.
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(5),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),

		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Kafka{
		client: client,
		topic:  cfg.Topic,
		logger: cfg.Logger.Named("kafka"),
	}, nil
}

// Publish implements Publisher. It returns once the record is buffered and
// never waits for the broker. A full buffer fails the record through the
// delivery callback.
func (k *Kafka) Publish(ctx context.Context, event *Event) error {
	record, err := k.record(event)
	if err != nil {
		return err
	}

	// The record outlives the caller's request.
	k.client.TryProduce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Error("error delivering event",
				"error", err,
				"event_id", event.ID,
				"type", event.Type,
				"user_id", event.UserID,
			)
			return
		}
		k.logger.Debug("delivered event", "event_id", event.ID, "type", event.Type)
	})
	return nil
}

func (k *Kafka) record(event *Event) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	// Keyed by user so changes for one player stay ordered.
	return &kgo.Record{
		Topic: k.topic,
		Key:   []byte(partitionKey(event)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}

// Close flushes and closes the client.
func (k *Kafka) Close() {
	k.client.Close()
}

func partitionKey(event *Event) string {
	if event.UserID != "" {
		return "user:" + event.UserID
	}
	return event.ID
}
