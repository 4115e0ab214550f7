//go:build integration

package containers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

type KafkaContainer struct {
	Container *kafka.KafkaContainer
	Brokers   string
}

var (
	kafkaMu     sync.Mutex
	sharedKafka *KafkaContainer
)

// Kafka returns the shared broker, starting it on first use.
func Kafka(t *testing.T) *KafkaContainer {
	t.Helper()

	kafkaMu.Lock()
	defer kafkaMu.Unlock()
	if sharedKafka != nil {
		return sharedKafka
	}

	ctx := context.Background()
	container, err := kafka.Run(ctx, kafkaImage, kafka.WithClusterID("warden-test"))
	if err != nil {
		t.Fatalf("kafka container: %v", err)
	}
	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("kafka brokers: %v", err)
	}
	sharedKafka = &KafkaContainer{Container: container, Brokers: brokers[0]}
	return sharedKafka
}

func (k *KafkaContainer) CreateTopic(ctx context.Context, topic string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return resp.Err
}

// Consume reads records from the start of topic until want have arrived or
// timeout elapses.
func (k *KafkaContainer) Consume(ctx context.Context, topic string, want int, timeout time.Duration) ([]*kgo.Record, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records, nil
}
