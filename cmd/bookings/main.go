package main

import (
	bookingshandler "bookery/internal/bookings/handler"
	bookingsrepo "bookery/internal/bookings/repository"
	bookingssvc "bookery/internal/bookings/service"
	"bookery/internal/bookings/validator"
	holdexpiryhandler "bookery/internal/holdexpiry/handler"
	holdexpirysvc "bookery/internal/holdexpiry/service"
	outboxrepo "bookery/internal/outbox/repository"
	reconhandler "bookery/internal/reconciliation/handler"
	reconsvc "bookery/internal/reconciliation/service"
	webhookshandler "bookery/internal/webhooks/handler"
	webhooksrepo "bookery/internal/webhooks/repository"
	webhookssvc "bookery/internal/webhooks/service"
	"bookery/pkg/app"
	"bookery/pkg/config"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetGateway()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Bookings service")

	bookingRepo := bookingsrepo.NewMongoBookingRepository(cfg)
	attemptRepo := bookingsrepo.NewMongoPaymentAttemptRepository(cfg)
	voucherRepo := bookingsrepo.NewMongoVoucherRepository(cfg)
	unitRepo := bookingsrepo.NewMongoServiceUnitRepository(cfg)
	outboxRepo := outboxrepo.NewMongoOutboxRepository(cfg)
	postRepo := outboxrepo.NewMongoSocialPostRepository(cfg)

	lifecycle := bookingssvc.NewLifecycleService(bookingRepo, attemptRepo, voucherRepo, unitRepo, outboxRepo, postRepo, cfg)
	checkout := bookingssvc.NewCheckoutService(
		bookingRepo,
		attemptRepo,
		voucherRepo,
		unitRepo,
		cfg.Client.Gateway,
		validator.NewCheckoutValidator(cfg.Log),
		cfg,
	)

	processedRepo := webhooksrepo.NewMongoProcessedEventRepository(cfg)
	lockRepo := webhooksrepo.NewMongoEventLockRepository(cfg)
	ingest := webhookssvc.NewIngestService(lifecycle, attemptRepo, processedRepo, lockRepo, cfg)

	reconcile := reconsvc.NewReconcileService(attemptRepo, lifecycle, cfg.Client.Gateway, cfg)
	expire := holdexpirysvc.NewExpireService(bookingRepo, lifecycle, cfg)

	cfg.Log.Info("Booking services initialized", "database", cfg.MongoDatabaseName)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		bookingshandler.NewBookingHandler(checkout, lifecycle, cfg.Log),
		webhookshandler.NewWebhookHandler(ingest, cfg.Log),
		reconhandler.NewCronHandler(reconcile, cfg.Log),
		holdexpiryhandler.NewCronHandler(expire, cfg.Log),
	)
	serverApp.Run()
}
