package handler

import (
	"net/http"

	"bookery/internal/holdexpiry/service"
	httputil "bookery/pkg/http"
	"bookery/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type CronHandler struct {
	expire service.ExpireService
	log    *logger.Logger
}

func NewCronHandler(expire service.ExpireService, log *logger.Logger) *CronHandler {
	return &CronHandler{
		expire: expire,
		log:    log,
	}
}

func (h *CronHandler) ExpireHolds(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	result, err := h.expire.ExpireHolds(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ExpireHolds", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "ExpireHolds", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CronHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/cron/expire-holds", h.ExpireHolds)
}
