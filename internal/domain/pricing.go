package domain

import "github.com/shopspring/decimal"

// PricingPolicy carries the order-level monetary policy applied when pricing a
// set of requested lines. It is supplied per call (normally from configuration)
// so pricing stays reproducible and testable.
type PricingPolicy struct {
	// TaxRate is the fractional rate applied to the subtotal, e.g. 0.15.
	TaxRate decimal.Decimal
	// ShippingFee is a flat order-level fee. May be zero.
	ShippingFee decimal.Decimal
	// Discount is an order-level reduction. May be zero; must never exceed
	// the gross amount it discounts.
	Discount decimal.Decimal
}

// OrderTotals aggregates the monetary outcome of pricing a request.
// Total = Subtotal + Tax + ShippingFee - Discount, all exact decimals.
type OrderTotals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
}

// LineSnapshot captures the priced, point-in-time view of one requested line.
// It becomes the immutable OrderItem snapshot when an order is created.
type LineSnapshot struct {
	ProductID   string
	ProductName string
	ImageURL    string
	UnitPrice   decimal.Decimal
	Quantity    int
	Subtotal    decimal.Decimal
}
