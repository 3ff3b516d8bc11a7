package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is the catalog snapshot the fulfillment engine reads and whose stock
// counter it mutates. Catalog management (naming, imagery, activation) is owned
// elsewhere; stock changes only through the ledger's conditional operation.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Stock     int
	Active    bool
	ImageURL  string
	UpdatedAt time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created and awaits handling.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing indicates fulfillment work has started.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCanceled indicates the order was canceled and its stock
	// restored. Terminal.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// ParseOrderStatus normalises and validates a caller supplied status value.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return status, true
	}
	return "", false
}

// PaymentStatus enumerates valid lifecycle states for payments.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the payment awaits gateway confirmation.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusPaid indicates the gateway reports the payment captured.
	PaymentStatusPaid PaymentStatus = "PAID"
	// PaymentStatusFailed indicates the gateway reports a failed attempt.
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusRefunded indicates the captured amount was returned.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// ParsePaymentStatus normalises and validates a caller supplied status value.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return status, true
	}
	return "", false
}

// Order is the aggregate root created once, atomically, by order placement.
// Monetary fields are fixed at creation; Status is the only mutable field.
type Order struct {
	ID          string
	UserID      string
	Status      OrderStatus
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Loaded relations for the consistent read-back view. Nil/empty when the
	// read path did not request them.
	Items   []OrderItem
	Address *ShippingAddress
	Payment *Payment
}

// OrderItem stores an immutable price-and-identity snapshot of a product at
// order time, protecting historical orders from later catalog changes.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	ImageURL    string
	UnitPrice   decimal.Decimal
	Quantity    int
	Subtotal    decimal.Decimal
}

// ShippingAddress is the optional 1:1 postal record for an order.
type ShippingAddress struct {
	ID            string
	OrderID       string
	RecipientName string
	Phone         string
	Line1         string
	Line2         string
	City          string
	State         string
	PostalCode    string
	Country       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is the 1:1 payment record for an order. Amount snapshots the order
// total at creation time.
type Payment struct {
	ID            string
	OrderID       string
	Amount        decimal.Decimal
	Provider      string
	TransactionID string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
