package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/emmatufvesson/relAI/internal/models"
)

// Producer publishes cycle snapshots to a Kafka topic
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	key      string
}

// NewProducer connects a synchronous producer that waits for all replicas
func NewProducer(brokers []string, topic, key string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewProducerWith(producer, topic, key), nil
}

// NewProducerWith wraps an existing sarama producer
func NewProducerWith(producer sarama.SyncProducer, topic, key string) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		key:      key,
	}
}

func (p *Producer) Name() string { return "kafka" }

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// Record sends the cycle report as one JSON message keyed by the producer key, so
// snapshots of one camera stay ordered within a partition.
func (p *Producer) Record(_ context.Context, report *models.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(p.key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: report.StartedAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(report.RunID)},
			{Key: []byte("stage"), Value: []byte(report.Stage)},
		},
	}

	if _, _, err := p.producer.SendMessage(kafkaMsg); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}

	return nil
}
