package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
)

// Producer interface abstracts Kafka producer
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// NewProducerConfig builds the librdkafka settings for the status producer
func NewProducerConfig(cfg config.KafkaConfig) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":   cfg.Brokers,
		"acks":                cfg.Producer.Acks,
		"delivery.timeout.ms": cfg.Producer.DeliveryTimeoutMs,
		"enable.idempotence":  cfg.Producer.Acks == "all",
		"client.id":           "status-ingest",
	}
}

// KafkaStatusListener publishes each status as one keyed record and waits for
// the broker to acknowledge it before returning
type KafkaStatusListener struct {
	producer       Producer
	topic          string
	source         string
	flushTimeoutMs int
	logger         *zap.Logger
	newMessageID   func() string
}

// NewKafkaStatusListener creates a listener producing to cfg.Topic.
// source tags every record with the runner variant that produced it.
func NewKafkaStatusListener(producer Producer, cfg config.KafkaConfig, source string, logger *zap.Logger) (*KafkaStatusListener, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KafkaStatusListener{
		producer:       producer,
		topic:          cfg.Topic,
		source:         source,
		flushTimeoutMs: cfg.Producer.FlushTimeoutMs,
		logger:         logger.Named("kafka-listener"),
		newMessageID:   uuid.NewString,
	}, nil
}

// OnStatus produces the status and blocks until its delivery report arrives
func (l *KafkaStatusListener) OnStatus(ctx context.Context, status events.StatusEvent) error {
	value, err := json.Marshal(events.NewStatusMessage(status))
	if err != nil {
		return fmt.Errorf("failed to marshal status %d: %w", status.ID, err)
	}

	key := events.GenerateStatusKey(status.UserID)
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &l.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
		Headers: []kafka.Header{
			{Key: events.HeaderMessageID, Value: []byte(l.newMessageID())},
			{Key: events.HeaderSource, Value: []byte(l.source)},
		},
	}

	// Buffered so a late report never blocks the producer after ctx is done
	deliveryChan := make(chan kafka.Event, 1)
	if err := l.producer.Produce(message, deliveryChan); err != nil {
		return fmt.Errorf("failed to enqueue status %d (key: %s): %w", status.ID, key, err)
	}

	select {
	case e := <-deliveryChan:
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				return fmt.Errorf("delivery failed for status %d (key: %s): %w", status.ID, key, ev.TopicPartition.Error)
			}
			l.logger.Debug("✅ Delivered status",
				zap.Uint64("status_id", status.ID),
				zap.String("key", key),
				zap.Int32("partition", ev.TopicPartition.Partition),
				zap.String("offset", ev.TopicPartition.Offset.String()))
			return nil
		case kafka.Error:
			return fmt.Errorf("kafka producer error for status %d: %w", status.ID, ev)
		default:
			return fmt.Errorf("unexpected delivery event %T for status %d", e, status.ID)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleProducerEvents logs producer-level events until ctx is done or the
// events channel is closed
func (l *KafkaStatusListener) HandleProducerEvents(ctx context.Context) {
	producerEvents := l.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-producerEvents:
			if !ok {
				return
			}
			switch ev := e.(type) {
			case kafka.Error:
				if ev.IsFatal() {
					l.logger.Error("❌ Fatal Kafka producer error", zap.Error(ev))
				} else {
					l.logger.Warn("⚠️ Kafka producer error", zap.Error(ev))
				}
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					l.logger.Error("❌ Delivery failed", zap.String("key", string(ev.Key)), zap.Error(ev.TopicPartition.Error))
				}
			}
		}
	}
}

// Close flushes outstanding records and closes the producer
func (l *KafkaStatusListener) Close() error {
	remaining := l.producer.Flush(l.flushTimeoutMs)
	l.producer.Close()
	if remaining > 0 {
		l.logger.Warn("⚠️ Records still pending after flush", zap.Int("remaining", remaining))
		return fmt.Errorf("%d records not delivered before close", remaining)
	}
	return nil
}
