package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
	"github.com/Log-Tools/status-ingest/internal/firehose"
	"github.com/Log-Tools/status-ingest/internal/listener"
	"github.com/Log-Tools/status-ingest/internal/logging"
	"github.com/Log-Tools/status-ingest/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream statuses into Kafka until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd)
	},
}

func runIngest(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	source := sourceFor(cfg)
	logger.Info("🔧 Configuration loaded",
		zap.String("source", source),
		zap.Strings("keywords", cfg.Keywords),
		zap.String("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic))

	producer, err := kafka.NewProducer(listener.NewProducerConfig(cfg.Kafka))
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	statusListener, err := listener.NewKafkaStatusListener(producer, cfg.Kafka, source, logger)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create status listener: %w", err)
	}
	defer func() {
		if err := statusListener.Close(); err != nil {
			logger.Warn("⚠️ Status listener did not close cleanly", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go statusListener.HandleProducerEvents(ctx)

	var upstream runner.Firehose
	if !cfg.EnableMockTweets {
		upstream = firehose.NewWebSocketFirehose(cfg.Live, logger)
	}

	streamRunner, err := runner.New(cfg, statusListener, upstream, logger)
	if err != nil {
		return err
	}

	handle, err := streamRunner.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start status stream: %w", err)
	}

	err = handle.Wait()
	if runner.IsInterrupted(err) {
		logger.Info("👋 Shutdown complete")
		return nil
	}
	return err
}

func sourceFor(cfg *config.Config) string {
	if cfg.EnableMockTweets {
		return events.SourceMock
	}
	return events.SourceLive
}
