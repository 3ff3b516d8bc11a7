package services

import (
	"context"
	"time"

	domain "github.com/lumenshop/api/internal/domain"
)

// OrderLineInput is one requested product line of an order before pricing.
type OrderLineInput struct {
	ProductID string
	Quantity  int
}

// AddressInput carries the postal fields for a shipping address.
type AddressInput struct {
	RecipientName string
	Phone         string
	Line1         string
	Line2         string
	City          string
	State         string
	PostalCode    string
	Country       string
}

// PaymentIntentInput optionally attaches an initial payment at order creation.
type PaymentIntentInput struct {
	Provider      string
	TransactionID string
}

// CreateOrderCommand describes an order placement request.
type CreateOrderCommand struct {
	UserID  string
	Items   []OrderLineInput
	Address *AddressInput
	Payment *PaymentIntentInput
}

// CancelOrderCommand describes a self-service cancellation request.
type CancelOrderCommand struct {
	OrderID  string
	CallerID string
}

// SetOrderStatusCommand describes an administrative status override.
type SetOrderStatusCommand struct {
	OrderID     string
	Status      string
	CallerID    string
	CallerAdmin bool
}

// GetOrderQuery identifies an order read with the caller's capabilities.
type GetOrderQuery struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
}

// ListOrdersQuery restricts and pages an order listing.
type ListOrdersQuery struct {
	UserID      string
	Status      []domain.OrderStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Pagination  domain.Pagination
}

// OrderService exposes the order lifecycle: atomic creation, self-service
// cancellation with stock restoration, administrative status overrides, and
// read paths for the HTTP layer.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (domain.Order, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error)
}

// CreatePaymentCommand attaches a payment record to an existing order.
type CreatePaymentCommand struct {
	OrderID       string
	CallerID      string
	CallerAdmin   bool
	Provider      string
	TransactionID string
}

// UpdatePaymentStatusCommand carries a gateway callback status change. No
// caller identity is attached; the transport layer authenticates the gateway.
type UpdatePaymentStatusCommand struct {
	OrderID       string
	Status        string
	TransactionID string
}

// RefundPaymentCommand describes an administrative refund request.
type RefundPaymentCommand struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
}

// GetPaymentQuery identifies a payment read with the caller's capabilities.
type GetPaymentQuery struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
}

// PaymentService manages the 1:1 payment record attached to an order.
type PaymentService interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (domain.Payment, error)
	UpdateStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Payment, error)
	Refund(ctx context.Context, cmd RefundPaymentCommand) (domain.Payment, error)
	GetPayment(ctx context.Context, query GetPaymentQuery) (domain.Payment, error)
}

// CreateAddressCommand attaches a shipping address to an existing order.
type CreateAddressCommand struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
	Address     AddressInput
}

// UpdateAddressCommand replaces the shipping address attached to an order.
type UpdateAddressCommand struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
	Address     AddressInput
}

// DeleteAddressCommand removes the shipping address attached to an order.
type DeleteAddressCommand struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
}

// GetAddressQuery identifies an address read with the caller's capabilities.
type GetAddressQuery struct {
	OrderID     string
	CallerID    string
	CallerAdmin bool
}

// AddressService manages the optional 1:1 shipping address of an order.
type AddressService interface {
	CreateAddress(ctx context.Context, cmd CreateAddressCommand) (domain.ShippingAddress, error)
	UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (domain.ShippingAddress, error)
	DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error
	GetAddress(ctx context.Context, query GetAddressQuery) (domain.ShippingAddress, error)
}
