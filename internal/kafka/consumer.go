package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/emmatufvesson/relAI/internal/models"
)

const consumeRetryDelay = 5 * time.Second

// SnapshotConsumer follows the snapshot topic in a consumer group and hands out decoded
// cycle reports. Records are marked as soon as they are decoded since readers only care
// about the newest snapshot.
type SnapshotConsumer struct {
	group     sarama.ConsumerGroup
	topic     string
	snapshots chan *models.CycleReport
	closed    chan struct{}
}

func NewConsumer(brokers []string, groupID, topic string) (*SnapshotConsumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", groupID, err)
	}

	return &SnapshotConsumer{
		group:     group,
		topic:     topic,
		snapshots: make(chan *models.CycleReport),
		closed:    make(chan struct{}),
	}, nil
}

// StartListening consumes in the background until ctx is cancelled. A failed session is
// retried after a pause.
func (c *SnapshotConsumer) StartListening(ctx context.Context) {
	handler := &snapshotHandler{snapshots: c.snapshots, closed: c.closed}

	go func() {
		defer close(c.snapshots)

		for ctx.Err() == nil {
			err := c.group.Consume(ctx, []string{c.topic}, handler)
			if err == nil {
				continue
			}
			slog.Warn("kafka consume failed", "topic", c.topic, "error", err, "retry_in", consumeRetryDelay)
			select {
			case <-ctx.Done():
			case <-c.closed:
				return
			case <-time.After(consumeRetryDelay):
			}
		}
		slog.Info("kafka consumer stopping", "topic", c.topic)
	}()
}

func (c *SnapshotConsumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

// Snapshots is closed when listening stops
func (c *SnapshotConsumer) Snapshots() <-chan *models.CycleReport {
	return c.snapshots
}

// DecodeSnapshot parses one record value written by Producer
func DecodeSnapshot(value []byte) (*models.CycleReport, error) {
	var report models.CycleReport
	if err := json.Unmarshal(value, &report); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if report.RunID == "" {
		return nil, fmt.Errorf("decode snapshot: missing run_id")
	}
	return &report, nil
}

type snapshotHandler struct {
	snapshots chan<- *models.CycleReport
	closed    <-chan struct{}
}

func (h *snapshotHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *snapshotHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *snapshotHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			report, err := DecodeSnapshot(msg.Value)
			sess.MarkMessage(msg, "")
			if err != nil {
				slog.Warn("skipping malformed snapshot",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err)
				continue
			}
			select {
			case h.snapshots <- report:
			case <-sess.Context().Done():
				return nil
			case <-h.closed:
				return nil
			}
		case <-sess.Context().Done():
			return nil
		case <-h.closed:
			return nil
		}
	}
}
