package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumenshop/api/internal/platform/httpx"
	"github.com/lumenshop/api/internal/services"
)

const (
	maxWebhookBodySize = 64 * 1024
	signatureHeader    = "X-Webhook-Signature"
)

type paymentWebhookRequest struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
}

// WebhookHandlers receives asynchronous payment gateway callbacks. Requests
// are authenticated by shared-secret signature, not by user identity.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.paymentStatus)
}

func (h *WebhookHandlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req paymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.UpdateStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:       strings.TrimSpace(req.OrderID),
		Status:        req.Status,
		TransactionID: strings.TrimSpace(req.TransactionID),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

// WebhookSignatureMiddleware rejects webhook requests whose body does not
// carry a valid HMAC-SHA256 signature computed with the shared gateway secret.
func WebhookSignatureMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if len(key) == 0 {
				httpx.WriteError(ctx, w, httpx.NewError("webhook_unconfigured", "webhook verification is not configured", http.StatusServiceUnavailable))
				return
			}

			provided := strings.TrimSpace(r.Header.Get(signatureHeader))
			if provided == "" {
				httpx.WriteError(ctx, w, httpx.NewError("signature_required", "webhook signature header is required", http.StatusUnauthorized))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifySignature(key, body, provided) {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func verifySignature(key, body []byte, provided string) bool {
	expected, err := hex.DecodeString(strings.TrimPrefix(provided, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
