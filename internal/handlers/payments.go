package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/platform/httpx"
	"github.com/lumenshop/api/internal/services"
)

const maxPaymentBodySize = 8 * 1024

type createPaymentRequest struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transactionId,omitempty"`
}

// PaymentHandlers exposes the payment record endpoints nested under an order.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /orders/{orderID}/payment endpoints on the given router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/payment", h.createPayment)
	r.Get("/{orderID}/payment", h.getPayment)
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
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

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.CreatePayment(ctx, services.CreatePaymentCommand{
		OrderID:       orderID,
		CallerID:      identity.UID,
		CallerAdmin:   identity.IsAdmin(),
		Provider:      strings.TrimSpace(req.Provider),
		TransactionID: strings.TrimSpace(req.TransactionID),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
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

	payment, err := h.payments.GetPayment(ctx, services.GetPaymentQuery{
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

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

type paymentPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"orderId"`
	Amount        string `json:"amount"`
	Provider      string `json:"provider"`
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func buildPaymentPayload(payment domain.Payment) paymentPayload {
	return paymentPayload{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount.String(),
		Provider:      payment.Provider,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		CreatedAt:     formatTime(payment.CreatedAt),
		UpdatedAt:     formatTime(payment.UpdatedAt),
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller may not access this payment", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentAlreadyExists):
		httpx.WriteError(ctx, w, httpx.NewError("payment_already_exists", "order already has a payment", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentProviderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_unavailable", "payment provider rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
