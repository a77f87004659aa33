package bus

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/kafka"
)

// KafkaEvents mirrors outbound events onto a kafka topic for downstream
// consumers (journal, dashboards). Best effort: a publish failure never
// blocks the engine loop.
type KafkaEvents struct {
	producer *kafka.Producer
	topic    string
	engineID string
}

func NewKafkaEvents(producer *kafka.Producer, topic, engineID string) *KafkaEvents {
	return &KafkaEvents{producer: producer, topic: topic, engineID: engineID}
}

func (k *KafkaEvents) Publish(ctx context.Context, ev Event) {
	if k == nil || k.producer == nil {
		return
	}
	if err := k.producer.PublishJSON(ctx, k.topic, k.engineID, ev); err != nil {
		zap.S().Warnw("kafka event publish failed", "type", ev.Type, "err", err)
	}
}

func (k *KafkaEvents) Close() error {
	if k == nil || k.producer == nil {
		return nil
	}
	return k.producer.Close()
}
