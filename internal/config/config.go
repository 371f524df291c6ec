package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Log-Tools/status-ingest/internal/events"
)

// Config represents the status ingestion service configuration
type Config struct {
	// Selects the synthetic generator instead of the live firehose
	EnableMockTweets bool `yaml:"enable_mock_tweets" env:"ENABLE_MOCK_TWEETS" default:"true"`

	// Keywords used to filter the live stream and seed synthetic statuses
	Keywords []string `yaml:"keywords" env:"TWITTER_KEYWORDS"`

	// Synthetic generator configuration
	Mock MockConfig `yaml:"mock"`

	// Live firehose configuration
	Live LiveConfig `yaml:"live"`

	// Forwarding policy applied to listener failures
	Listener RetryConfig `yaml:"listener"`

	// Kafka configuration
	Kafka KafkaConfig `yaml:"kafka"`

	// Logging configuration
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" default:"console"`
}

// MockConfig contains settings for the synthetic status generator
type MockConfig struct {
	MinTweetLength int   `yaml:"min_tweet_length" env:"MOCK_MIN_TWEET_LENGTH" default:"5"`
	MaxTweetLength int   `yaml:"max_tweet_length" env:"MOCK_MAX_TWEET_LENGTH" default:"15"`
	SleepMs        int64 `yaml:"sleep_ms" env:"MOCK_SLEEP_MS" default:"10000"`

	// Seed for the generator's random source; 0 picks a time-based seed
	Seed uint64 `yaml:"seed" env:"MOCK_SEED" default:"0"`
}

// SleepDuration returns the inter-event delay
func (m MockConfig) SleepDuration() time.Duration {
	return time.Duration(m.SleepMs) * time.Millisecond
}

// LiveConfig contains settings for the upstream firehose connection
type LiveConfig struct {
	StreamURL   string      `yaml:"stream_url" env:"LIVE_STREAM_URL"`
	BearerToken string      `yaml:"bearer_token" env:"LIVE_BEARER_TOKEN"`
	Reconnect   RetryConfig `yaml:"reconnect"`
}

// RetryConfig bounds a retry loop: MaxAttempts total tries with doubling backoff
// between them, capped at MaxBackoff
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// KafkaConfig contains Kafka connection settings
type KafkaConfig struct {
	Brokers string `yaml:"brokers" env:"KAFKA_BROKERS" default:"localhost:9092"`

	// Topic receiving one record per status
	Topic string `yaml:"topic" env:"KAFKA_TOPIC" default:"twitter-topic"`

	// Used by init-topics only
	Partitions        int `yaml:"partitions" env:"KAFKA_PARTITIONS" default:"3"`
	ReplicationFactor int `yaml:"replication_factor" env:"KAFKA_REPLICATION_FACTOR" default:"1"`

	// Producer configuration
	Producer ProducerConfig `yaml:"producer"`
}

// ProducerConfig contains Kafka producer settings
type ProducerConfig struct {
	Acks              string `yaml:"acks" env:"KAFKA_PRODUCER_ACKS" default:"all"`
	DeliveryTimeoutMs int    `yaml:"delivery_timeout_ms" env:"KAFKA_PRODUCER_DELIVERY_TIMEOUT_MS" default:"15000"`
	FlushTimeoutMs    int    `yaml:"flush_timeout_ms" env:"KAFKA_PRODUCER_FLUSH_TIMEOUT_MS" default:"15000"`
}

// Default retry policies
var (
	DefaultListenerRetry = RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
	DefaultReconnectRetry = RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	}
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.ValidateRunner(); err != nil {
		return err
	}
	if c.Kafka.Brokers == "" {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	return nil
}

// ValidateRunner validates the settings of the runner variant selected by EnableMockTweets
func (c *Config) ValidateRunner() error {
	if c.EnableMockTweets {
		return c.ValidateMockRunner()
	}
	return c.ValidateLiveRunner()
}

// ValidateMockRunner validates the settings the synthetic runner reads
func (c *Config) ValidateMockRunner() error {
	// Synthetic text is measured in whitespace separated words
	if err := c.validateKeywords(true); err != nil {
		return err
	}
	if err := c.Listener.validate("listener"); err != nil {
		return err
	}
	return c.validateMock()
}

// ValidateLiveRunner validates the settings the firehose runner reads
func (c *Config) ValidateLiveRunner() error {
	if err := c.validateKeywords(false); err != nil {
		return err
	}
	if err := c.Listener.validate("listener"); err != nil {
		return err
	}
	return c.validateLive()
}

func (c *Config) validateKeywords(singleWord bool) error {
	if len(c.Keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	for i, keyword := range c.Keywords {
		if strings.TrimSpace(keyword) == "" {
			return fmt.Errorf("keyword %d is blank", i)
		}
		if singleWord && len(strings.Fields(keyword)) != 1 {
			return fmt.Errorf("keyword %q must be a single word in mock mode", keyword)
		}
	}
	return nil
}

// validateMock validates synthetic generator configuration
func (c *Config) validateMock() error {
	if c.Mock.MinTweetLength < 0 {
		return fmt.Errorf("min_tweet_length cannot be negative")
	}
	if c.Mock.MinTweetLength > c.Mock.MaxTweetLength {
		return fmt.Errorf("min_tweet_length (%d) cannot exceed max_tweet_length (%d)",
			c.Mock.MinTweetLength, c.Mock.MaxTweetLength)
	}
	// One word is always the injected keyword
	if c.Mock.MaxTweetLength < 1 {
		return fmt.Errorf("max_tweet_length must be at least 1")
	}
	if c.Mock.SleepMs < 0 {
		return fmt.Errorf("sleep_ms cannot be negative")
	}
	return nil
}

// validateLive validates live firehose configuration
func (c *Config) validateLive() error {
	if c.Live.StreamURL == "" {
		return fmt.Errorf("live mode requires stream_url")
	}
	return c.Live.Reconnect.validate("reconnect")
}

func (r RetryConfig) validate(name string) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("%s max_attempts must be at least 1", name)
	}
	if r.BaseBackoff < 0 || r.MaxBackoff < 0 {
		return fmt.Errorf("%s backoff cannot be negative", name)
	}
	return nil
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Mock mode is the default when the key is absent
	cfg := Config{EnableMockTweets: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables with defaults
func LoadConfigFromEnv() (*Config, error) {
	cfg := Config{
		EnableMockTweets: parseBoolEnv("ENABLE_MOCK_TWEETS", true),
		Keywords:         parseStringSliceEnv("TWITTER_KEYWORDS"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
		Mock: MockConfig{
			MinTweetLength: parseIntEnv("MOCK_MIN_TWEET_LENGTH", 5),
			MaxTweetLength: parseIntEnv("MOCK_MAX_TWEET_LENGTH", 15),
			SleepMs:        parseInt64Env("MOCK_SLEEP_MS", 10000),
			Seed:           uint64(parseInt64Env("MOCK_SEED", 0)),
		},
		Live: LiveConfig{
			StreamURL:   os.Getenv("LIVE_STREAM_URL"),
			BearerToken: os.Getenv("LIVE_BEARER_TOKEN"),
			Reconnect: RetryConfig{
				MaxAttempts: parseIntEnv("LIVE_RECONNECT_MAX_ATTEMPTS", DefaultReconnectRetry.MaxAttempts),
				BaseBackoff: parseDurationEnv("LIVE_RECONNECT_BASE_BACKOFF", DefaultReconnectRetry.BaseBackoff),
				MaxBackoff:  parseDurationEnv("LIVE_RECONNECT_MAX_BACKOFF", DefaultReconnectRetry.MaxBackoff),
			},
		},
		Listener: RetryConfig{
			MaxAttempts: parseIntEnv("LISTENER_MAX_ATTEMPTS", DefaultListenerRetry.MaxAttempts),
			BaseBackoff: parseDurationEnv("LISTENER_BASE_BACKOFF", DefaultListenerRetry.BaseBackoff),
			MaxBackoff:  parseDurationEnv("LISTENER_MAX_BACKOFF", DefaultListenerRetry.MaxBackoff),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnv("KAFKA_BROKERS", "localhost:9092"),
			Topic:             getEnv("KAFKA_TOPIC", events.TopicStatuses),
			Partitions:        parseIntEnv("KAFKA_PARTITIONS", 3),
			ReplicationFactor: parseIntEnv("KAFKA_REPLICATION_FACTOR", 1),
			Producer: ProducerConfig{
				Acks:              getEnv("KAFKA_PRODUCER_ACKS", "all"),
				DeliveryTimeoutMs: parseIntEnv("KAFKA_PRODUCER_DELIVERY_TIMEOUT_MS", 15000),
				FlushTimeoutMs:    parseIntEnv("KAFKA_PRODUCER_FLUSH_TIMEOUT_MS", 15000),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
		return parsed
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.Mock.MinTweetLength == 0 && cfg.Mock.MaxTweetLength == 0 {
		cfg.Mock.MinTweetLength = 5
		cfg.Mock.MaxTweetLength = 15
	}
	if cfg.Listener.MaxAttempts == 0 {
		cfg.Listener.MaxAttempts = DefaultListenerRetry.MaxAttempts
	}
	if cfg.Listener.BaseBackoff == 0 {
		cfg.Listener.BaseBackoff = DefaultListenerRetry.BaseBackoff
	}
	if cfg.Listener.MaxBackoff == 0 {
		cfg.Listener.MaxBackoff = DefaultListenerRetry.MaxBackoff
	}
	if cfg.Live.Reconnect.MaxAttempts == 0 {
		cfg.Live.Reconnect.MaxAttempts = DefaultReconnectRetry.MaxAttempts
	}
	if cfg.Live.Reconnect.BaseBackoff == 0 {
		cfg.Live.Reconnect.BaseBackoff = DefaultReconnectRetry.BaseBackoff
	}
	if cfg.Live.Reconnect.MaxBackoff == 0 {
		cfg.Live.Reconnect.MaxBackoff = DefaultReconnectRetry.MaxBackoff
	}
	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "localhost:9092"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = events.TopicStatuses
	}
	if cfg.Kafka.Partitions == 0 {
		cfg.Kafka.Partitions = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}
	if cfg.Kafka.Producer.Acks == "" {
		cfg.Kafka.Producer.Acks = "all"
	}
	if cfg.Kafka.Producer.DeliveryTimeoutMs == 0 {
		cfg.Kafka.Producer.DeliveryTimeoutMs = 15000
	}
	if cfg.Kafka.Producer.FlushTimeoutMs == 0 {
		cfg.Kafka.Producer.FlushTimeoutMs = 15000
	}
}
