package handler

import (
	"net/http"

	"bookery/internal/reconciliation/service"
	httputil "bookery/pkg/http"
	"bookery/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// CronHandler exposes the reconciliation sweep to the scheduler. The route is
// wrapped in cron bearer-token auth at wiring time.
type CronHandler struct {
	reconcile service.ReconcileService
	log       *logger.Logger
}

func NewCronHandler(reconcile service.ReconcileService, log *logger.Logger) *CronHandler {
	return &CronHandler{
		reconcile: reconcile,
		log:       log,
	}
}

func (h *CronHandler) ReconcilePayments(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	summary, err := h.reconcile.Sweep(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ReconcilePayments", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, summary); err != nil {
		h.log.Error("failed to write success response", "handler", "ReconcilePayments", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CronHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/cron/reconcile-payments", h.ReconcilePayments)
}
