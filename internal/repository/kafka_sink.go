package repository

import (
	"context"
	"errors"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaTickSink publishes normalized ticks to a Kafka topic, keyed by symbol
// so consumers see per-symbol order.
type KafkaTickSink struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaTickSink(producer *pkgkafka.Producer, topic string) *KafkaTickSink {
	return &KafkaTickSink{producer: producer, topic: topic}
}

func (s *KafkaTickSink) Publish(ctx context.Context, t *models.Tick) error {
	return s.producer.Publish(ctx, s.topic, []byte(t.Symbol), map[string]interface{}{
		"source":    string(t.Source),
		"symbol":    t.Symbol,
		"price":     t.Price,
		"change":    t.Change,
		"changePct": t.ChangePercent,
		"volume":    t.Volume,
		"ts":        t.Timestamp.UnixMilli(),
		"simulated": t.Simulated,
	})
}

// PublishBatch flushes buffered ticks in one writer call.
func (s *KafkaTickSink) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(t.Symbol),
			Value: map[string]interface{}{
				"source":    string(t.Source),
				"symbol":    t.Symbol,
				"price":     t.Price,
				"change":    t.Change,
				"changePct": t.ChangePercent,
				"volume":    t.Volume,
				"ts":        t.Timestamp.UnixMilli(),
				"simulated": t.Simulated,
			},
		})
	}
	return s.producer.PublishBatch(ctx, s.topic, msgs)
}

func (s *KafkaTickSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// MultiSink fans one tick out to several sinks. Every sink sees every tick;
// errors are joined rather than short-circuiting.
type MultiSink struct {
	sinks []repository.TickSink
}

func NewMultiSink(sinks ...repository.TickSink) *MultiSink {
	out := make([]repository.TickSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Publish(ctx context.Context, t *models.Tick) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishBatch fans a batch out to every sink, using each sink's own batch
// path when it has one and falling back to per-tick publishes otherwise.
func (m *MultiSink) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	var errs []error
	for _, s := range m.sinks {
		if bs, ok := s.(interface {
			PublishBatch(ctx context.Context, ticks []*models.Tick) error
		}); ok {
			if err := bs.PublishBatch(ctx, ticks); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, t := range ticks {
			if err := s.Publish(ctx, t); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
