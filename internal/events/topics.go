package events

// Kafka Topics
const (
	// TopicStatuses receives one record per ingested status
	TopicStatuses = "twitter-topic"
)
