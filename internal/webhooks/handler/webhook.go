package handler

import (
	"io"
	"net/http"

	"bookery/internal/webhooks/service"
	httputil "bookery/pkg/http"
	"bookery/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// WebhookHandler terminates gateway webhook deliveries. Signature
// verification happens in middleware before this handler runs; here we hand
// the raw body to the ingest service and translate its outcome into the
// status the gateway's retry policy expects.
type WebhookHandler struct {
	ingest service.IngestService
	log    *logger.Logger
}

func NewWebhookHandler(ingest service.IngestService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingest: ingest,
		log:    log,
	}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Failed to read request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Receive", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	outcome, err := h.ingest.Ingest(r.Context(), body)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Receive", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"outcome": outcome}); err != nil {
		h.log.Error("failed to write success response", "handler", "Receive", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WebhookHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/webhooks/payments", h.Receive)
}
