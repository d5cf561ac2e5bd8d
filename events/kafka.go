package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/land-registry/interfaces"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by KafkaSink.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

const (
	// DefaultFlushTimeout bounds the flush of buffered records when a sink stops.
	DefaultFlushTimeout = 10 * time.Second

	// DefaultDeliveryTimeout fails records that could not be delivered in time
	// instead of retrying them forever.
	DefaultDeliveryTimeout = 30 * time.Second
)

// KafkaSink forwards journal records to a Kafka topic, keyed by parcel id so
// records of one parcel stay ordered within a partition.
type KafkaSink struct {
	producer     Producer
	topic        string
	flushTimeout time.Duration
	log          *slog.Logger
}

// NewKafkaClient creates a producer client for topic. Brokers are dialed
// lazily on first produce. opts are applied after the defaults.
func NewKafkaClient(brokers []string, topic string, opts ...kgo.Opt) (*kgo.Client, error) {
	client, err := kgo.NewClient(append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.RecordDeliveryTimeout(DefaultDeliveryTimeout),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client for %s: %w", strings.Join(brokers, ","), err)
	}
	return client, nil
}

// NewKafkaSink creates a sink writing to topic.
func NewKafkaSink(producer Producer, topic string, log *slog.Logger) *KafkaSink {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaSink{
		producer:     producer,
		topic:        topic,
		flushTimeout: DefaultFlushTimeout,
		log:          log,
	}
}

// SetFlushTimeout overrides how long Run waits for buffered records on exit.
func (s *KafkaSink) SetFlushTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.flushTimeout = timeout
	}
}

// Run forwards records from ch until ch is closed or ctx is done, then
// flushes for at most the flush timeout.
func (s *KafkaSink) Run(ctx context.Context, ch <-chan interfaces.Event) error {
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		defer cancel()
		if err := s.producer.Flush(flushCtx); err != nil {
			s.log.Error("Failed to flush kafka producer", "err", err, slog.Duration("timeout", s.flushTimeout))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.send(ctx, ev); err != nil {
				s.log.Error("Failed to encode record", "err", err, slog.Uint64("seq", ev.Seq))
			}
		}
	}
}

func (s *KafkaSink) send(ctx context.Context, ev interfaces.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(ev.ParcelID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}

	s.producer.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			s.log.Error("Failed to produce record",
				"err", err,
				slog.String("topic", r.Topic),
				slog.Uint64("seq", ev.Seq))
			return
		}
		s.log.Debug("Produced record",
			slog.String("topic", r.Topic),
			slog.Int("partition", int(r.Partition)),
			slog.Int64("offset", r.Offset),
			slog.Uint64("seq", ev.Seq))
	})
	return nil
}
