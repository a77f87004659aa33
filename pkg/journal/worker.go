package journal

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/kafka"
)

// Worker consumes journal events from kafka and bulk-inserts them.
type Worker struct {
	events IOrderEvent
}

func NewWorker(events IOrderEvent) *Worker {
	return &Worker{events: events}
}

// Run blocks until the context is cancelled. Malformed payloads are dropped
// with a log line; insert failures are returned to the consumer so the batch
// is redelivered.
func (w *Worker) Run(ctx context.Context, cg *kafka.ConsumerGroup) error {
	return cg.Run(ctx, func(ctx context.Context, msgs []kafka.Message) error {
		records := make([]*OrderEvent, 0, len(msgs))
		for _, m := range msgs {
			var ev OrderEvent
			if err := json.Unmarshal(m.Value, &ev); err != nil {
				zap.S().Errorw("discarding malformed journal event", "offset", m.Offset, "err", err)
				continue
			}
			records = append(records, &ev)
		}
		if _, err := w.events.BulkCreate(ctx, records); err != nil {
			return err
		}
		zap.S().Debugw("journal batch stored", "count", len(records))
		return nil
	})
}
