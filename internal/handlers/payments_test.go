package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/services"
)

func newPaymentRouter(payments services.PaymentService) chi.Router {
	r := chi.NewRouter()
	NewPaymentHandlers(payments).Routes(r)
	return r
}

func TestCreatePaymentForwardsCommand(t *testing.T) {
	var captured services.CreatePaymentCommand
	payments := &stubPaymentService{
		createFn: func(_ context.Context, cmd services.CreatePaymentCommand) (domain.Payment, error) {
			captured = cmd
			return samplePayment(), nil
		},
	}
	router := newPaymentRouter(payments)

	req := httptest.NewRequest(http.MethodPost, "/ord_01/payment", strings.NewReader(`{"provider":"stripe","transactionId":"pi_1"}`))
	req = authedRequest(req, userIdentity("user-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", res.Code, http.StatusCreated, res.Body.String())
	}
	if captured.OrderID != "ord_01" || captured.Provider != "stripe" || captured.TransactionID != "pi_1" {
		t.Fatalf("command = %+v", captured)
	}
	if captured.CallerID != "user-1" || captured.CallerAdmin {
		t.Fatalf("caller = %q admin=%v", captured.CallerID, captured.CallerAdmin)
	}

	var payload paymentResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Payment.Amount != "23" {
		t.Fatalf("payment amount = %q, want 23", payload.Payment.Amount)
	}
}

func TestCreatePaymentMapsAlreadyExists(t *testing.T) {
	payments := &stubPaymentService{
		createFn: func(context.Context, services.CreatePaymentCommand) (domain.Payment, error) {
			return domain.Payment{}, services.ErrPaymentAlreadyExists
		},
	}
	router := newPaymentRouter(payments)

	req := httptest.NewRequest(http.MethodPost, "/ord_01/payment", strings.NewReader(`{"provider":"stripe"}`))
	req = authedRequest(req, userIdentity("user-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusConflict)
	}
	if !strings.Contains(res.Body.String(), "payment_already_exists") {
		t.Fatalf("body = %q", res.Body.String())
	}
}

func TestGetPaymentRequiresIdentity(t *testing.T) {
	router := newPaymentRouter(&stubPaymentService{})

	req := httptest.NewRequest(http.MethodGet, "/ord_01/payment", nil)

	res := performRequest(router, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusUnauthorized)
	}
}

func TestGetPaymentMapsNotFound(t *testing.T) {
	payments := &stubPaymentService{
		getFn: func(context.Context, services.GetPaymentQuery) (domain.Payment, error) {
			return domain.Payment{}, services.ErrPaymentNotFound
		},
	}
	router := newPaymentRouter(payments)

	req := httptest.NewRequest(http.MethodGet, "/ord_01/payment", nil)
	req = authedRequest(req, userIdentity("user-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusNotFound)
	}
}
