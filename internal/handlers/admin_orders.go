package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumenshop/api/internal/platform/auth"
	"github.com/lumenshop/api/internal/platform/httpx"
	"github.com/lumenshop/api/internal/services"
)

// AdminOrderHandlers exposes the administrative order and payment overrides.
type AdminOrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth("admin"))
	}
	r.Patch("/orders/{orderID}/status", h.setOrderStatus)
	r.Post("/orders/{orderID}/payment:refund", h.refundPayment)
}

func (h *AdminOrderHandlers) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxSetStatusBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req setOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.SetStatus(ctx, services.SetOrderStatusCommand{
		OrderID:     orderID,
		Status:      req.Status,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) refundPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	payment, err := h.payments.Refund(ctx, services.RefundPaymentCommand{
		OrderID:     orderID,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}
