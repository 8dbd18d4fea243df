package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvGatewayBaseURL       = "GATEWAY_BASE_URL"
	EnvGatewayAPIKey        = "GATEWAY_API_KEY"
	EnvGatewayWebhookSecret = "GATEWAY_WEBHOOK_SECRET"
	EnvGatewayTimeout       = "GATEWAY_TIMEOUT"

	EnvWebhookTimestampTolerance = "WEBHOOK_TIMESTAMP_TOLERANCE"
	EnvAmountMismatchTolerance   = "AMOUNT_MISMATCH_TOLERANCE"
	EnvEventLockTTL              = "EVENT_LOCK_TTL"

	EnvCronAuthToken = "CRON_AUTH_TOKEN"

	EnvHoldTTL        = "HOLD_TTL"
	EnvHoldSweepLimit = "HOLD_SWEEP_LIMIT"

	EnvReconcileBatchSize     = "RECONCILE_BATCH_SIZE"
	EnvReconcilePendingCutoff = "RECONCILE_PENDING_CUTOFF"

	EnvOutboxPollInterval      = "OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize         = "OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts       = "OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetryBackoff      = "OUTBOX_RETRY_BACKOFF"
	EnvOutboxVisibilityTimeout = "OUTBOX_VISIBILITY_TIMEOUT"

	EnvKafkaNotificationsTopic = "KAFKA_NOTIFICATIONS_TOPIC"
	EnvKafkaSocialTopic        = "KAFKA_SOCIAL_TOPIC"
	EnvKafkaDLQTopic           = "KAFKA_DLQ_TOPIC"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
