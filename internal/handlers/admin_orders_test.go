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

func newAdminRouter(orders services.OrderService, payments services.PaymentService) chi.Router {
	r := chi.NewRouter()
	NewAdminOrderHandlers(nil, orders, payments).Routes(r)
	return r
}

func TestSetOrderStatusForwardsCommand(t *testing.T) {
	var captured services.SetOrderStatusCommand
	orders := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.SetOrderStatusCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
	}
	router := newAdminRouter(orders, &stubPaymentService{})

	req := httptest.NewRequest(http.MethodPatch, "/orders/ord_01/status", strings.NewReader(`{"status":"SHIPPED"}`))
	req = authedRequest(req, adminIdentity("admin-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", res.Code, http.StatusOK, res.Body.String())
	}
	if captured.OrderID != "ord_01" || captured.Status != "SHIPPED" {
		t.Fatalf("command = %+v", captured)
	}
	if !captured.CallerAdmin {
		t.Fatal("command must mark the caller as admin")
	}

	var payload orderResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.Status != string(domain.OrderStatusShipped) {
		t.Fatalf("order status = %q, want SHIPPED", payload.Order.Status)
	}
}

func TestSetOrderStatusRequiresStatusField(t *testing.T) {
	router := newAdminRouter(&stubOrderService{}, &stubPaymentService{})

	req := httptest.NewRequest(http.MethodPatch, "/orders/ord_01/status", strings.NewReader(`{"status":"  "}`))
	req = authedRequest(req, adminIdentity("admin-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusBadRequest)
	}
}

func TestSetOrderStatusMapsInvalidInput(t *testing.T) {
	orders := &stubOrderService{
		statusFn: func(context.Context, services.SetOrderStatusCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidInput
		},
	}
	router := newAdminRouter(orders, &stubPaymentService{})

	req := httptest.NewRequest(http.MethodPatch, "/orders/ord_01/status", strings.NewReader(`{"status":"ARCHIVED"}`))
	req = authedRequest(req, adminIdentity("admin-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusBadRequest)
	}
}

func TestRefundPaymentFlipsStatus(t *testing.T) {
	var captured services.RefundPaymentCommand
	payments := &stubPaymentService{
		refundFn: func(_ context.Context, cmd services.RefundPaymentCommand) (domain.Payment, error) {
			captured = cmd
			payment := samplePayment()
			payment.Status = domain.PaymentStatusRefunded
			return payment, nil
		},
	}
	router := newAdminRouter(&stubOrderService{}, payments)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/payment:refund", nil)
	req = authedRequest(req, adminIdentity("admin-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", res.Code, http.StatusOK, res.Body.String())
	}
	if captured.OrderID != "ord_01" || !captured.CallerAdmin {
		t.Fatalf("command = %+v", captured)
	}

	var payload paymentResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Payment.Status != string(domain.PaymentStatusRefunded) {
		t.Fatalf("payment status = %q, want REFUNDED", payload.Payment.Status)
	}
}

func TestRefundPaymentMapsProviderFailure(t *testing.T) {
	payments := &stubPaymentService{
		refundFn: func(context.Context, services.RefundPaymentCommand) (domain.Payment, error) {
			return domain.Payment{}, services.ErrPaymentProviderUnavailable
		},
	}
	router := newAdminRouter(&stubOrderService{}, payments)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/payment:refund", nil)
	req = authedRequest(req, adminIdentity("admin-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusBadGateway)
	}
	if !strings.Contains(res.Body.String(), "payment_provider_unavailable") {
		t.Fatalf("body = %q", res.Body.String())
	}
}

func TestRefundPaymentMapsInvalidState(t *testing.T) {
	payments := &stubPaymentService{
		refundFn: func(context.Context, services.RefundPaymentCommand) (domain.Payment, error) {
			return domain.Payment{}, services.ErrPaymentInvalidState
		},
	}
	router := newAdminRouter(&stubOrderService{}, payments)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01/payment:refund", nil)
	req = authedRequest(req, adminIdentity("admin-1"))

	res := performRequest(router, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusConflict)
	}
}
