package journal

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/kafka"
)

// Recorder is the producer half of the journal. Publish failures are logged
// and dropped; an unreachable broker must never hold up order flow.
type Recorder struct {
	producer *kafka.Producer
	topic    string
}

func NewRecorder(producer *kafka.Producer, topic string) *Recorder {
	return &Recorder{producer: producer, topic: topic}
}

func (r *Recorder) Record(ctx context.Context, ev *OrderEvent) {
	if r == nil || r.producer == nil {
		return
	}
	if err := r.producer.PublishJSON(ctx, r.topic, ev.OrderID, ev); err != nil {
		zap.S().Warnw("journal publish failed", "event_id", ev.EventID, "err", err)
	}
}

func (r *Recorder) Close() error {
	if r == nil || r.producer == nil {
		return nil
	}
	return r.producer.Close()
}
