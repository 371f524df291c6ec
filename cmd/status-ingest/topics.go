package main

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/spf13/cobra"

	"github.com/Log-Tools/status-ingest/internal/listener"
)

var dryRun bool

var initTopicsCmd = &cobra.Command{
	Use:   "init-topics",
	Short: "Create the status topic if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if dryRun {
			fmt.Printf("🔍 Dry run mode - would create/verify topic(s) on %s:\n", cfg.Kafka.Brokers)
			for _, spec := range listener.BuildTopicSpecs(cfg.Kafka) {
				fmt.Printf("   📋 %s (partitions: %d, replication: %d)\n",
					spec.Topic, spec.NumPartitions, spec.ReplicationFactor)
			}
			return nil
		}

		admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": cfg.Kafka.Brokers})
		if err != nil {
			return fmt.Errorf("failed to create admin client: %w", err)
		}
		defer admin.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		report, err := listener.EnsureTopics(ctx, admin, cfg.Kafka, nil)
		fmt.Printf("📊 Summary: %d created, %d existing, %d failed\n", report.Created, report.Existing, report.Failed)
		return err
	},
}

var testKafkaCmd = &cobra.Command{
	Use:   "test-kafka",
	Short: "Check that the brokers are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("🔗 Connecting to Kafka brokers: %s\n", cfg.Kafka.Brokers)
		admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": cfg.Kafka.Brokers})
		if err != nil {
			return fmt.Errorf("failed to create admin client: %w", err)
		}
		defer admin.Close()

		brokers, topicExists, err := listener.CheckConnectivity(admin, cfg.Kafka.Topic, 10*time.Second)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Kafka reachable: %d broker(s)\n", brokers)
		if topicExists {
			fmt.Printf("✅ Topic %s exists\n", cfg.Kafka.Topic)
		} else {
			fmt.Printf("⚠️  Topic %s not found; run init-topics\n", cfg.Kafka.Topic)
		}
		return nil
	},
}

func init() {
	initTopicsCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be created without creating topics")
}
