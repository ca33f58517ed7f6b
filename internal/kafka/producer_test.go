package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/emmatufvesson/relAI/internal/models"
)

func TestProducerRecordSendsSnapshot(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "vision-snapshots" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "cam-1" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		var report models.CycleReport
		if err := json.Unmarshal(value, &report); err != nil {
			return err
		}
		if report.Seq != 7 || report.Result == nil || report.Result.TopLabel != "person" {
			return errors.New("unexpected payload " + string(value))
		}
		if len(msg.Headers) != 2 || string(msg.Headers[1].Value) != "done" {
			return errors.New("missing stage header")
		}
		return nil
	})

	p := NewProducerWith(mock, "vision-snapshots", "cam-1")
	err := p.Record(context.Background(), &models.CycleReport{
		Seq:    7,
		Stage:  models.StageDone,
		Result: &models.AggregationResult{TopLabel: "person", TopScore: 0.9},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestProducerRecordFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(mock, "vision-snapshots", "cam-1")
	err := p.Record(context.Background(), &models.CycleReport{Seq: 1, Stage: models.StageCapture, Error: "capture: busy"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	_ = p.Close()
}
