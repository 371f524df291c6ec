package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
)

const adminOperationTimeout = 30 * time.Second

// Admin interface abstracts the Kafka admin client
type Admin interface {
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	Close()
}

// TopicReport counts the outcome of a topic bootstrap
type TopicReport struct {
	Created  int
	Existing int
	Failed   int
}

// BuildTopicSpecs returns the topic specification for the status topic
func BuildTopicSpecs(cfg config.KafkaConfig) []kafka.TopicSpecification {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	return []kafka.TopicSpecification{{
		Topic:             cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
		Config:            map[string]string{"cleanup.policy": "delete"},
	}}
}

// EnsureTopics creates the status topic. An existing topic is not an error.
func EnsureTopics(ctx context.Context, admin Admin, cfg config.KafkaConfig, logger *zap.Logger) (TopicReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var report TopicReport
	results, err := admin.CreateTopics(ctx, BuildTopicSpecs(cfg), kafka.SetAdminOperationTimeout(adminOperationTimeout))
	if err != nil {
		return report, fmt.Errorf("CreateTopics request failed: %w", err)
	}

	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError:
			logger.Info("✓ created topic", zap.String("topic", res.Topic))
			report.Created++
		case kafka.ErrTopicAlreadyExists:
			logger.Info("✓ topic already exists", zap.String("topic", res.Topic))
			report.Existing++
		default:
			logger.Error("✗ failed to create topic", zap.String("topic", res.Topic), zap.Error(res.Error))
			report.Failed++
		}
	}

	if report.Failed > 0 {
		return report, fmt.Errorf("%d topic(s) could not be created", report.Failed)
	}
	return report, nil
}

// CheckConnectivity requests cluster metadata and reports whether the status topic exists
func CheckConnectivity(admin Admin, topic string, timeout time.Duration) (brokers int, topicExists bool, err error) {
	metadata, err := admin.GetMetadata(nil, true, int(timeout.Milliseconds()))
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch cluster metadata: %w", err)
	}

	_, topicExists = metadata.Topics[topic]
	return len(metadata.Brokers), topicExists, nil
}
