package handler

import (
	"encoding/json"
	"net/http"

	"bookery/internal/bookings/service"
	httputil "bookery/pkg/http"
	"bookery/pkg/logger"
	"bookery/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	checkout  service.CheckoutService
	lifecycle service.LifecycleService
	log       *logger.Logger
}

func NewBookingHandler(checkout service.CheckoutService, lifecycle service.LifecycleService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		checkout:  checkout,
		lifecycle: lifecycle,
		log:       log,
	}
}

func (h *BookingHandler) Checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Checkout", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	result, err := h.checkout.Checkout(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Checkout", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Checkout", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.checkout.GetBooking(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

type manualPaymentRequest struct {
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
	SubmittedBy string `json:"submitted_by,omitempty"`
}

func (h *BookingHandler) SubmitManualPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var req manualPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "SubmitManualPayment", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	booking, err := h.lifecycle.SubmitManualPayment(r.Context(), id, req.Amount, req.Method, req.SubmittedBy)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SubmitManualPayment", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "SubmitManualPayment", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) CompleteUnit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	unitID := ps.ByName("id")

	promoted, err := h.lifecycle.MarkUnitDone(r.Context(), unitID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CompleteUnit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"booking_completed": promoted}); err != nil {
		h.log.Error("failed to write success response", "handler", "CompleteUnit", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/checkout", h.Checkout)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/manual-payment", h.SubmitManualPayment)
	router.POST("/api/v1/service-units/id/:id/complete", h.CompleteUnit)
}
