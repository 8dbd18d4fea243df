package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	healthhandler "bookery/internal/health/handler"
	"bookery/pkg/config"
	"bookery/pkg/contracts"
	"bookery/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

// BackgroundRunner is a long-lived worker (the outbox dispatcher) that runs
// alongside the HTTP server and stops when its context is cancelled.
type BackgroundRunner interface {
	Run(ctx context.Context)
}

type Application struct {
	cfg            *config.Config
	server         *http.Server
	healthHandler  http.Handler
	appHttpHandler http.Handler
	webhookHandler http.Handler
	cronHandler    http.Handler
	runners        []BackgroundRunner
	runnerCancel   context.CancelFunc
	runnerWG       sync.WaitGroup
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp wires the three route groups, each with its own middleware chain:
// signature verification only in front of webhooks, cron auth only in front
// of sweeps, and the full stack in front of storefront routes.
func (a *Application) SetApp(appHandler contracts.Handler, webhookHandler contracts.Handler, cronHandlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(appHandler)
	a.setWebhookHandler(webhookHandler)
	a.setCronHandler(cronHandlers...)
	a.setAppServer()
}

// AddRunner registers a background worker started with Run.
func (a *Application) AddRunner(runner BackgroundRunner) {
	a.runners = append(a.runners, runner)
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	handler := healthhandler.NewHealthHandler(a.cfg.Client.Mongo, a.cfg.Log)
	handler.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler) {
	if appHandler == nil {
		return
	}

	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured")
}

func (a *Application) setWebhookHandler(webhookHandler contracts.Handler) {
	if webhookHandler == nil {
		return
	}

	webhookRouter := httprouter.New()
	webhookHandler.RegisterRoutes(webhookRouter)

	var webhookHTTPHandler http.Handler = webhookRouter
	webhookHTTPHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(webhookHTTPHandler)
	if a.cfg.GatewayWebhookSecret != "" {
		webhookHTTPHandler = middleware.GatewaySignatureVerification(
			a.cfg.GatewayWebhookSecret,
			a.cfg.WebhookTimestampTolerance,
			a.cfg.Log,
		)(webhookHTTPHandler)
		a.cfg.Log.Info("Gateway signature verification enabled")
	} else {
		a.cfg.Log.Warn("Gateway webhook secret not set, signature verification disabled")
	}
	webhookHTTPHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(webhookHTTPHandler)
	webhookHTTPHandler = middleware.RequestLogging(a.cfg.Log)(webhookHTTPHandler)
	webhookHTTPHandler = middleware.Recovery(a.cfg.Log)(webhookHTTPHandler)
	a.webhookHandler = webhookHTTPHandler
	a.cfg.Log.Info("Webhook endpoints configured")
}

func (a *Application) setCronHandler(cronHandlers ...contracts.Handler) {
	if len(cronHandlers) == 0 {
		return
	}

	cronRouter := httprouter.New()
	for _, handler := range cronHandlers {
		handler.RegisterRoutes(cronRouter)
	}

	var cronHTTPHandler http.Handler = cronRouter
	cronHTTPHandler = middleware.CronAuth(a.cfg.CronAuthToken, a.cfg.Log)(cronHTTPHandler)
	cronHTTPHandler = middleware.RequestLogging(a.cfg.Log)(cronHTTPHandler)
	cronHTTPHandler = middleware.Recovery(a.cfg.Log)(cronHTTPHandler)
	a.cronHandler = cronHTTPHandler
	a.cfg.Log.Info("Cron endpoints configured behind bearer auth")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.webhookHandler != nil {
		mux.Handle("/api/v1/webhooks/", a.webhookHandler)
	}
	if a.cronHandler != nil {
		mux.Handle("/api/v1/cron/", a.cronHandler)
	}
	if a.appHttpHandler != nil {
		mux.Handle("/", a.appHttpHandler)
	}

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	runnerCtx, cancel := context.WithCancel(context.Background())
	a.runnerCancel = cancel
	for _, runner := range a.runners {
		a.runnerWG.Add(1)
		go func(r BackgroundRunner) {
			defer a.runnerWG.Done()
			r.Run(runnerCtx)
		}(runner)
	}

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	if a.runnerCancel != nil {
		a.cfg.Log.Info("Stopping background workers...")
		a.runnerCancel()
		a.runnerWG.Wait()
		a.cfg.Log.Info("Background workers stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
