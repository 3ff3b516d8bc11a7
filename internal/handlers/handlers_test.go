package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/platform/auth"
	"github.com/lumenshop/api/internal/services"
)

type stubOrderService struct {
	createFn func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	cancelFn func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	statusFn func(ctx context.Context, cmd services.SetOrderStatusCommand) (domain.Order, error)
	getFn    func(ctx context.Context, query services.GetOrderQuery) (domain.Order, error)
	listFn   func(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) SetStatus(ctx context.Context, cmd services.SetOrderStatusCommand) (domain.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubPaymentService struct {
	createFn func(ctx context.Context, cmd services.CreatePaymentCommand) (domain.Payment, error)
	updateFn func(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (domain.Payment, error)
	refundFn func(ctx context.Context, cmd services.RefundPaymentCommand) (domain.Payment, error)
	getFn    func(ctx context.Context, query services.GetPaymentQuery) (domain.Payment, error)
}

func (s *stubPaymentService) CreatePayment(ctx context.Context, cmd services.CreatePaymentCommand) (domain.Payment, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Payment{}, nil
}

func (s *stubPaymentService) UpdateStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (domain.Payment, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.Payment{}, nil
}

func (s *stubPaymentService) Refund(ctx context.Context, cmd services.RefundPaymentCommand) (domain.Payment, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return domain.Payment{}, nil
}

func (s *stubPaymentService) GetPayment(ctx context.Context, query services.GetPaymentQuery) (domain.Payment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return domain.Payment{}, nil
}

type stubAddressService struct {
	createFn func(ctx context.Context, cmd services.CreateAddressCommand) (domain.ShippingAddress, error)
	updateFn func(ctx context.Context, cmd services.UpdateAddressCommand) (domain.ShippingAddress, error)
	deleteFn func(ctx context.Context, cmd services.DeleteAddressCommand) error
	getFn    func(ctx context.Context, query services.GetAddressQuery) (domain.ShippingAddress, error)
}

func (s *stubAddressService) CreateAddress(ctx context.Context, cmd services.CreateAddressCommand) (domain.ShippingAddress, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.ShippingAddress{}, nil
}

func (s *stubAddressService) UpdateAddress(ctx context.Context, cmd services.UpdateAddressCommand) (domain.ShippingAddress, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.ShippingAddress{}, nil
}

func (s *stubAddressService) DeleteAddress(ctx context.Context, cmd services.DeleteAddressCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return nil
}

func (s *stubAddressService) GetAddress(ctx context.Context, query services.GetAddressQuery) (domain.ShippingAddress, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return domain.ShippingAddress{}, nil
}

func authedRequest(req *http.Request, identity *auth.Identity) *http.Request {
	if identity == nil {
		return req
	}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func userIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid}
}

func adminIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{"admin"}}
}

func sampleOrder() domain.Order {
	created := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_01",
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		Subtotal:    decimal.RequireFromString("20"),
		Tax:         decimal.RequireFromString("3"),
		Discount:    decimal.Zero,
		ShippingFee: decimal.Zero,
		Total:       decimal.RequireFromString("23"),
		CreatedAt:   created,
		UpdatedAt:   created,
		Items: []domain.OrderItem{
			{
				ID:          "itm_01",
				OrderID:     "ord_01",
				ProductID:   "p1",
				ProductName: "Walnut desk organiser",
				UnitPrice:   decimal.RequireFromString("10"),
				Quantity:    2,
				Subtotal:    decimal.RequireFromString("20"),
			},
		},
	}
}

func samplePayment() domain.Payment {
	created := time.Date(2025, 3, 10, 9, 31, 0, 0, time.UTC)
	return domain.Payment{
		ID:        "pay_01",
		OrderID:   "ord_01",
		Amount:    decimal.RequireFromString("23"),
		Provider:  "stripe",
		Status:    domain.PaymentStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func performRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}
