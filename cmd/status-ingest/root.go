package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Log-Tools/status-ingest/internal/config"
)

var (
	configPath  string
	kafkaBroker string
	kafkaTopic  string
	mockMode    bool
)

// rootCmd runs the ingest loop when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "status-ingest",
	Short: "Stream filtered statuses into Kafka",
	Long: `Reads statuses matching a set of keywords and republishes each one on a Kafka topic.

Statuses come either from a live firehose or from a synthetic generator
(enable_mock_tweets). Configuration is read from a YAML file when --config
is given, otherwise from environment variables.

Examples:
  # Run with environment configuration
  TWITTER_KEYWORDS=golang,kafka status-ingest

  # Run from a config file against a different broker
  status-ingest --config configs/config.yaml --brokers kafka:9092

  # Create the status topic
  status-ingest init-topics --config configs/config.yaml

  # Check broker connectivity
  status-ingest test-kafka`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: environment variables)")
	rootCmd.PersistentFlags().StringVar(&kafkaBroker, "brokers", "", "Kafka brokers (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&kafkaTopic, "topic", "t", "", "status topic (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", true, "use the synthetic status generator (overrides config)")

	rootCmd.AddCommand(runCmd, initTopicsCmd, testKafkaCmd)
}

// loadConfig reads the file or environment configuration and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfigFromFile(configPath)
	} else {
		cfg, err = config.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	changed := false
	if kafkaBroker != "" {
		cfg.Kafka.Brokers = kafkaBroker
		changed = true
	}
	if kafkaTopic != "" {
		cfg.Kafka.Topic = kafkaTopic
		changed = true
	}
	if cmd.Flags().Changed("mock") {
		cfg.EnableMockTweets = mockMode
		changed = true
	}

	if changed {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration after flag overrides: %w", err)
		}
	}
	return nil
}
