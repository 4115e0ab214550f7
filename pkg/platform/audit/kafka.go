package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "warden.audit"

// KafkaConfig configures the Kafka audit sink.
type KafkaConfig struct {
	// Brokers is a comma separated seed broker list.
	Brokers         string
	Topic           string
	DeliveryTimeout time.Duration
}

// KafkaEmitter publishes audit events to a Kafka topic, keyed by subject so
// the events of one account stay ordered within a partition.
type KafkaEmitter struct {
	client *kgo.Client
	topic  string
}

func NewKafkaEmitter(cfg KafkaConfig) (*KafkaEmitter, error) {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka audit producer: %w", err)
	}
	return &KafkaEmitter{client: client, topic: cfg.Topic}, nil
}

// Emit blocks until the broker acknowledges the record.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	record, err := newRecord(e.topic, event)
	if err != nil {
		return err
	}
	if err := e.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish audit event to %s: %w", e.topic, err)
	}
	return nil
}

// Health pings the seed brokers.
func (e *KafkaEmitter) Health(ctx context.Context) error {
	return e.client.Ping(ctx)
}

// Close flushes buffered records and releases the client.
func (e *KafkaEmitter) Close(ctx context.Context) error {
	err := e.client.Flush(ctx)
	e.client.Close()
	return err
}

type eventPayload struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	IPPrefix  string    `json:"ip_prefix,omitempty"`
}

func newRecord(topic string, event Event) (*kgo.Record, error) {
	value, err := json.Marshal(eventPayload{
		Timestamp: event.Timestamp.UTC(),
		Action:    event.Action,
		Subject:   event.Subject,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		IPPrefix:  event.IPPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Topic:   topic,
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: "action", Value: []byte(event.Action)}},
	}
	if event.Subject != "" {
		record.Key = []byte(event.Subject)
	}
	return record, nil
}

var _ Emitter = (*KafkaEmitter)(nil)
