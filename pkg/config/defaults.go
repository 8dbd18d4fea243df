package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "bookery"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultGatewayBaseURL = "https://api.gateway.test"
	DefaultGatewayTimeout = 10 * time.Second

	// Policy constants inherited from the original design. Configurable,
	// not hard invariants.
	DefaultWebhookTimestampTolerance = 5 * time.Minute
	DefaultAmountMismatchTolerance   = 1
	DefaultEventLockTTL              = 30 * time.Second

	DefaultHoldTTL        = 15 * time.Minute
	DefaultHoldSweepLimit = 200

	DefaultReconcileBatchSize     = 50
	DefaultReconcilePendingCutoff = 10 * time.Minute

	DefaultOutboxPollInterval      = 5 * time.Second
	DefaultOutboxBatchSize         = 20
	DefaultOutboxMaxAttempts       = 8
	DefaultOutboxRetryBackoff      = 30 * time.Second
	DefaultOutboxVisibilityTimeout = 5 * time.Minute

	DefaultKafkaNotificationsTopic = "bookery.notifications"
	DefaultKafkaSocialTopic        = "bookery.social-posts"
	DefaultKafkaDLQTopic           = "bookery.dlq"

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
