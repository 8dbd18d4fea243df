package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"bookery/pkg/client"
	"bookery/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration

	WebhookTimestampTolerance time.Duration
	AmountMismatchTolerance   int64
	EventLockTTL              time.Duration

	CronAuthToken string

	HoldTTL        time.Duration
	HoldSweepLimit int

	ReconcileBatchSize     int
	ReconcilePendingCutoff time.Duration

	OutboxPollInterval      time.Duration
	OutboxBatchSize         int
	OutboxMaxAttempts       int
	OutboxRetryBackoff      time.Duration
	OutboxVisibilityTimeout time.Duration

	KafkaNotificationsTopic string
	KafkaSocialTopic        string
	KafkaDLQTopic           string

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		GatewayBaseURL:       getEnvStr(EnvGatewayBaseURL, DefaultGatewayBaseURL),
		GatewayAPIKey:        getEnvStr(EnvGatewayAPIKey, ""),
		GatewayWebhookSecret: getEnvStr(EnvGatewayWebhookSecret, ""),
		GatewayTimeout:       getEnvDuration(EnvGatewayTimeout, DefaultGatewayTimeout),

		WebhookTimestampTolerance: getEnvDuration(EnvWebhookTimestampTolerance, DefaultWebhookTimestampTolerance),
		AmountMismatchTolerance:   int64(getEnvNum(EnvAmountMismatchTolerance, DefaultAmountMismatchTolerance)),
		EventLockTTL:              getEnvDuration(EnvEventLockTTL, DefaultEventLockTTL),

		CronAuthToken: getEnvStr(EnvCronAuthToken, ""),

		HoldTTL:        getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		HoldSweepLimit: getEnvNum(EnvHoldSweepLimit, DefaultHoldSweepLimit),

		ReconcileBatchSize:     getEnvNum(EnvReconcileBatchSize, DefaultReconcileBatchSize),
		ReconcilePendingCutoff: getEnvDuration(EnvReconcilePendingCutoff, DefaultReconcilePendingCutoff),

		OutboxPollInterval:      getEnvDuration(EnvOutboxPollInterval, DefaultOutboxPollInterval),
		OutboxBatchSize:         getEnvNum(EnvOutboxBatchSize, DefaultOutboxBatchSize),
		OutboxMaxAttempts:       getEnvNum(EnvOutboxMaxAttempts, DefaultOutboxMaxAttempts),
		OutboxRetryBackoff:      getEnvDuration(EnvOutboxRetryBackoff, DefaultOutboxRetryBackoff),
		OutboxVisibilityTimeout: getEnvDuration(EnvOutboxVisibilityTimeout, DefaultOutboxVisibilityTimeout),

		KafkaNotificationsTopic: getEnvStr(EnvKafkaNotificationsTopic, DefaultKafkaNotificationsTopic),
		KafkaSocialTopic:        getEnvStr(EnvKafkaSocialTopic, DefaultKafkaSocialTopic),
		KafkaDLQTopic:           getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetGateway() {
	cfg.Client.SetGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.GatewayBaseURL == "" {
		errors = append(errors, "GatewayBaseURL cannot be empty")
	}
	if cfg.GatewayTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("GatewayTimeout must be positive, got: %s", cfg.GatewayTimeout))
	}

	if cfg.WebhookTimestampTolerance <= 0 {
		errors = append(errors, fmt.Sprintf("WebhookTimestampTolerance must be positive, got: %s", cfg.WebhookTimestampTolerance))
	}
	if cfg.AmountMismatchTolerance < 0 {
		errors = append(errors, fmt.Sprintf("AmountMismatchTolerance cannot be negative, got: %d", cfg.AmountMismatchTolerance))
	}
	if cfg.EventLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("EventLockTTL must be positive, got: %s", cfg.EventLockTTL))
	}

	if cfg.HoldTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldTTL must be positive, got: %s", cfg.HoldTTL))
	}
	if cfg.HoldSweepLimit <= 0 {
		errors = append(errors, fmt.Sprintf("HoldSweepLimit must be positive, got: %d", cfg.HoldSweepLimit))
	}

	if cfg.ReconcileBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("ReconcileBatchSize must be positive, got: %d", cfg.ReconcileBatchSize))
	}
	if cfg.ReconcilePendingCutoff <= 0 {
		errors = append(errors, fmt.Sprintf("ReconcilePendingCutoff must be positive, got: %s", cfg.ReconcilePendingCutoff))
	}

	if cfg.OutboxPollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxPollInterval must be positive, got: %s", cfg.OutboxPollInterval))
	}
	if cfg.OutboxBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxBatchSize must be positive, got: %d", cfg.OutboxBatchSize))
	}
	if cfg.OutboxMaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxMaxAttempts must be positive, got: %d", cfg.OutboxMaxAttempts))
	}
	if cfg.OutboxRetryBackoff <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxRetryBackoff must be positive, got: %s", cfg.OutboxRetryBackoff))
	}
	if cfg.OutboxVisibilityTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxVisibilityTimeout must be positive, got: %s", cfg.OutboxVisibilityTimeout))
	}

	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"gateway_base_url", cfg.GatewayBaseURL,
		"gateway_api_key_set", cfg.GatewayAPIKey != "",
		"gateway_webhook_secret_set", cfg.GatewayWebhookSecret != "",
		"gateway_timeout", cfg.GatewayTimeout,
		"webhook_timestamp_tolerance", cfg.WebhookTimestampTolerance,
		"amount_mismatch_tolerance", cfg.AmountMismatchTolerance,
		"event_lock_ttl", cfg.EventLockTTL,
		"cron_auth_token_set", cfg.CronAuthToken != "",
		"hold_ttl", cfg.HoldTTL,
		"hold_sweep_limit", cfg.HoldSweepLimit,
		"reconcile_batch_size", cfg.ReconcileBatchSize,
		"reconcile_pending_cutoff", cfg.ReconcilePendingCutoff,
		"outbox_poll_interval", cfg.OutboxPollInterval,
		"outbox_batch_size", cfg.OutboxBatchSize,
		"outbox_max_attempts", cfg.OutboxMaxAttempts,
		"outbox_retry_backoff", cfg.OutboxRetryBackoff,
		"outbox_visibility_timeout", cfg.OutboxVisibilityTimeout,
		"kafka_notifications_topic", cfg.KafkaNotificationsTopic,
		"kafka_social_topic", cfg.KafkaSocialTopic,
		"kafka_dlq_topic", cfg.KafkaDLQTopic,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}
