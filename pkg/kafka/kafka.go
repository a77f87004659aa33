// Package kafka wraps segmentio/kafka-go with a JSON producer and a batching
// consumer group. The producer acks on the leader: order events are an audit
// trail and must not be dropped on the floor by fire-and-forget writes.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Raw       kafkago.Message
}

type ProducerConfig struct {
	Brokers      []string `yaml:"brokers"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout time.Duration
}

type Producer struct {
	w *kafkago.Writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return &Producer{w: &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafkago.RequireOne,
	}}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p == nil || p.w == nil {
		return errors.New("producer not initialized")
	}
	return p.w.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Producer) PublishJSON(ctx context.Context, topic, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, []byte(key), b)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

type ConsumerConfig struct {
	Brokers      []string `yaml:"brokers"`
	GroupID      string   `yaml:"group_id"`
	Topic        string   `yaml:"topic"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout time.Duration
}

// ConsumerGroup fetches messages and hands them to the handler in batches.
// Offsets are committed only after the handler returns nil, so a crashed
// consumer replays instead of losing messages.
type ConsumerGroup struct {
	r   *kafkago.Reader
	cfg ConsumerConfig
}

func NewConsumerGroup(cfg ConsumerConfig) *ConsumerGroup {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
	return &ConsumerGroup{r: r, cfg: cfg}
}

func (cg *ConsumerGroup) Close() error {
	if cg == nil || cg.r == nil {
		return nil
	}
	return cg.r.Close()
}

// Run blocks, delivering batches until the context ends.
func (cg *ConsumerGroup) Run(ctx context.Context, handler func(context.Context, []Message) error) error {
	var buf []kafkago.Message

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		wrapped := make([]Message, len(buf))
		for i, m := range buf {
			wrapped[i] = Message{
				Topic:     m.Topic,
				Partition: m.Partition,
				Offset:    m.Offset,
				Key:       m.Key,
				Value:     m.Value,
				Time:      m.Time,
				Raw:       m,
			}
		}
		if err := handler(ctx, wrapped); err != nil {
			zap.S().Errorw("batch handler failed, not committing", "size", len(buf), "err", err)
			return err
		}
		if err := cg.r.CommitMessages(ctx, buf...); err != nil {
			return err
		}
		buf = nil
		return nil
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, cg.cfg.BatchTimeout)
		m, err := cg.r.FetchMessage(fetchCtx)
		cancel()

		switch {
		case err == nil:
			buf = append(buf, m)
			if len(buf) >= cg.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case errors.Is(err, context.DeadlineExceeded):
			if err := flush(); err != nil {
				return err
			}
		case errors.Is(err, context.Canceled):
			return ctx.Err()
		default:
			zap.S().Errorw("fetch failed", "err", err)
			time.Sleep(200 * time.Millisecond)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// HashKey derives a stable partition key from an identifier.
func HashKey(s string) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return b
}
