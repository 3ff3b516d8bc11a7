package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/lumenshop/api/internal/domain"
)

func TestPriceItemsComputesExactTotals(t *testing.T) {
	engine := testPricingEngine(t, catalogWithP1(10))

	result, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items:  []OrderLineInput{{ProductID: "p1", Quantity: 2}},
		Policy: testPolicy(),
	})
	if err != nil {
		t.Fatalf("PriceItems: %v", err)
	}

	if got := result.Totals.Subtotal.String(); got != "20" {
		t.Fatalf("expected subtotal 20, got %s", got)
	}
	if got := result.Totals.Tax.String(); got != "3" {
		t.Fatalf("expected tax 3, got %s", got)
	}
	if got := result.Totals.Total.String(); got != "23" {
		t.Fatalf("expected total 23, got %s", got)
	}

	sum := decimal.Zero
	for _, line := range result.Lines {
		sum = sum.Add(line.Subtotal)
	}
	if !sum.Equal(result.Totals.Subtotal) {
		t.Fatalf("line subtotals %s do not sum to subtotal %s", sum, result.Totals.Subtotal)
	}
}

func TestPriceItemsTotalsIdentity(t *testing.T) {
	products := catalogWithP1(50)
	products["p2"] = domain.Product{
		ID:        "p2",
		Name:      "Brass bookend",
		UnitPrice: decimal.RequireFromString("7.35"),
		Stock:     12,
		Active:    true,
	}
	engine := testPricingEngine(t, products)

	policy := domain.PricingPolicy{
		TaxRate:     decimal.RequireFromString("0.0825"),
		ShippingFee: decimal.RequireFromString("4.99"),
		Discount:    decimal.RequireFromString("2.50"),
	}

	result, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items: []OrderLineInput{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 7},
		},
		Policy: policy,
	})
	if err != nil {
		t.Fatalf("PriceItems: %v", err)
	}

	expected := result.Totals.Subtotal.
		Add(result.Totals.Tax).
		Add(result.Totals.ShippingFee).
		Sub(result.Totals.Discount)
	if !result.Totals.Total.Equal(expected) {
		t.Fatalf("total %s does not satisfy the identity, expected %s", result.Totals.Total, expected)
	}
}

func TestPriceItemsMergesDuplicateLines(t *testing.T) {
	engine := testPricingEngine(t, catalogWithP1(10))

	result, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items: []OrderLineInput{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p1", Quantity: 2},
		},
		Policy: testPolicy(),
	})
	if err != nil {
		t.Fatalf("PriceItems: %v", err)
	}

	if len(result.Lines) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(result.Lines))
	}
	if result.Lines[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", result.Lines[0].Quantity)
	}
}

func TestPriceItemsRejectsEmptyAndNonPositive(t *testing.T) {
	engine := testPricingEngine(t, catalogWithP1(10))

	cases := []struct {
		name  string
		items []OrderLineInput
	}{
		{"empty", nil},
		{"zero quantity", []OrderLineInput{{ProductID: "p1", Quantity: 0}}},
		{"negative quantity", []OrderLineInput{{ProductID: "p1", Quantity: -4}}},
		{"blank product id", []OrderLineInput{{ProductID: "  ", Quantity: 1}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.PriceItems(context.Background(), PriceItemsCommand{
				Items:  tc.items,
				Policy: testPolicy(),
			})
			if !errors.Is(err, ErrPricingInvalidInput) {
				t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
			}
		})
	}
}

func TestPriceItemsMissingProduct(t *testing.T) {
	engine := testPricingEngine(t, catalogWithP1(10))

	_, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items:  []OrderLineInput{{ProductID: "ghost", Quantity: 1}},
		Policy: testPolicy(),
	})
	if !errors.Is(err, ErrPricingProductNotFound) {
		t.Fatalf("expected ErrPricingProductNotFound, got %v", err)
	}
}

func TestPriceItemsInactiveProduct(t *testing.T) {
	products := catalogWithP1(10)
	inactive := products["p1"]
	inactive.Active = false
	products["p1"] = inactive
	engine := testPricingEngine(t, products)

	_, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items:  []OrderLineInput{{ProductID: "p1", Quantity: 1}},
		Policy: testPolicy(),
	})
	if !errors.Is(err, ErrPricingProductInactive) {
		t.Fatalf("expected ErrPricingProductInactive, got %v", err)
	}
}

func TestPriceItemsInsufficientStock(t *testing.T) {
	engine := testPricingEngine(t, catalogWithP1(1))

	_, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items:  []OrderLineInput{{ProductID: "p1", Quantity: 2}},
		Policy: testPolicy(),
	})
	if !errors.Is(err, ErrPricingInsufficientStock) {
		t.Fatalf("expected ErrPricingInsufficientStock, got %v", err)
	}
}

func TestPriceItemsRejectsExcessiveDiscount(t *testing.T) {
	engine := testPricingEngine(t, catalogWithP1(10))

	_, err := engine.PriceItems(context.Background(), PriceItemsCommand{
		Items: []OrderLineInput{{ProductID: "p1", Quantity: 1}},
		Policy: domain.PricingPolicy{
			TaxRate:  decimal.RequireFromString("0.15"),
			Discount: decimal.RequireFromString("999"),
		},
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
	}
}
