package main

import (
	"bookery/internal/outbox/handlers"
	outboxrepo "bookery/internal/outbox/repository"
	outboxsvc "bookery/internal/outbox/service"
	"bookery/pkg/app"
	"bookery/pkg/config"
	"bookery/pkg/kafka"
	kafka_config "bookery/pkg/kafka/config"
	kafka_middleware "bookery/pkg/kafka/middleware"
	"bookery/pkg/model"
)

const ServiceName = "dispatcher"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Outbox Dispatcher service")

	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	notificationsProducer := newProducer(cfg, kafkaCfg, cfg.KafkaNotificationsTopic)
	defer notificationsProducer.Close()
	socialProducer := newProducer(cfg, kafkaCfg, cfg.KafkaSocialTopic)
	defer socialProducer.Close()

	outboxRepo := outboxrepo.NewMongoOutboxRepository(cfg)
	postsRepo := outboxrepo.NewMongoSocialPostRepository(cfg)

	emailNotifier := handlers.NewEmailNotifier(notificationsProducer, cfg)
	socialPublisher := handlers.NewSocialPublisher(postsRepo, socialProducer, cfg)

	dispatcher := outboxsvc.NewDispatcher(outboxRepo, cfg)
	dispatcher.Register(model.EventBookingConfirmed, emailNotifier.HandleBookingConfirmed)
	dispatcher.Register(model.EventBookingCancelled, emailNotifier.HandleBookingCancelled)
	dispatcher.Register(model.EventPaymentConfirmed, emailNotifier.HandlePaymentConfirmed)
	dispatcher.Register(model.EventManualPaymentSubmitted, emailNotifier.HandleManualPaymentSubmitted)
	dispatcher.Register(model.EventSocialPostRequested, socialPublisher.HandleSocialPostRequested)

	if err := dispatcher.VerifyRegistrations(); err != nil {
		cfg.Log.Fatal("Dispatcher registry incomplete", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(nil, nil)
	serverApp.AddRunner(dispatcher)
	serverApp.Run()
}

func newProducer(cfg *config.Config, kafkaCfg *kafka_config.Config, topic string) *kafka.Producer {
	producer, err := kafka.NewProducer(kafkaCfg, topic, cfg.KafkaDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware())
	}
	return producer
}
