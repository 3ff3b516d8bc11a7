package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as an empty item
	// list or a non-positive quantity.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductNotFound is returned when a requested product id does
	// not exist in the catalog.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrPricingProductInactive is returned when a requested product exists
	// but is not purchasable.
	ErrPricingProductInactive = errors.New("pricing: product inactive")
	// ErrPricingInsufficientStock is returned when a requested quantity
	// exceeds the stock observed at pricing time.
	ErrPricingInsufficientStock = errors.New("pricing: insufficient stock")
)

// PricingEngine computes order totals from live catalog data. It is a pure
// read: no stock is reserved here, that happens afterwards inside the order
// creation transaction.
type PricingEngine struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles collaborators required to construct the engine.
type PricingEngineDeps struct {
	Products repositories.ProductRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine wires dependencies into a pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing engine: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		products: deps.Products,
		logger:   logger,
	}, nil
}

// PriceItemsCommand carries the requested lines and the monetary policy the
// caller resolved from configuration.
type PriceItemsCommand struct {
	Items  []OrderLineInput
	Policy domain.PricingPolicy
}

// PricingResult is the aggregate outcome plus the per-line snapshots that
// become immutable order items.
type PricingResult struct {
	Totals domain.OrderTotals
	Lines  []domain.LineSnapshot
}

// PriceItems validates the request, reads the referenced products in one
// batch, and computes exact decimal totals. Duplicate product ids are merged
// by summing their quantities.
func (e *PricingEngine) PriceItems(ctx context.Context, cmd PriceItemsCommand) (PricingResult, error) {
	lines, err := mergeOrderLines(cmd.Items)
	if err != nil {
		return PricingResult{}, err
	}
	if err := validatePricingPolicy(cmd.Policy); err != nil {
		return PricingResult{}, err
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return PricingResult{}, fmt.Errorf("pricing: product lookup: %w", err)
	}

	snapshots := make([]domain.LineSnapshot, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return PricingResult{}, fmt.Errorf("%w: %s", ErrPricingProductNotFound, line.ProductID)
		}
		if !product.Active {
			return PricingResult{}, fmt.Errorf("%w: %s", ErrPricingProductInactive, product.ID)
		}
		if line.Quantity > product.Stock {
			return PricingResult{}, fmt.Errorf("%w: product %s has %d available, requested %d",
				ErrPricingInsufficientStock, product.ID, product.Stock, line.Quantity)
		}

		lineSubtotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineSubtotal)
		snapshots = append(snapshots, domain.LineSnapshot{
			ProductID:   product.ID,
			ProductName: product.Name,
			ImageURL:    product.ImageURL,
			UnitPrice:   product.UnitPrice,
			Quantity:    line.Quantity,
			Subtotal:    lineSubtotal,
		})
	}

	tax := subtotal.Mul(cmd.Policy.TaxRate)
	gross := subtotal.Add(tax).Add(cmd.Policy.ShippingFee)
	if cmd.Policy.Discount.GreaterThan(gross) {
		return PricingResult{}, fmt.Errorf("%w: discount %s exceeds gross amount %s",
			ErrPricingInvalidInput, cmd.Policy.Discount, gross)
	}
	total := gross.Sub(cmd.Policy.Discount)

	e.logger(ctx, "pricing.computed", map[string]any{
		"lines":    len(snapshots),
		"subtotal": subtotal.String(),
		"total":    total.String(),
	})

	return PricingResult{
		Totals: domain.OrderTotals{
			Subtotal:    subtotal,
			Tax:         tax,
			Discount:    cmd.Policy.Discount,
			ShippingFee: cmd.Policy.ShippingFee,
			Total:       total,
		},
		Lines: snapshots,
	}, nil
}

// mergeOrderLines validates quantities and collapses duplicate product ids,
// preserving the first-seen order of the ids.
func mergeOrderLines(items []OrderLineInput) ([]OrderLineInput, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrPricingInvalidInput)
	}

	merged := make(map[string]int, len(items))
	position := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be positive", ErrPricingInvalidInput, productID)
		}
		if _, seen := merged[productID]; !seen {
			position[productID] = len(position)
		}
		merged[productID] += item.Quantity
	}

	lines := make([]OrderLineInput, 0, len(merged))
	for productID, quantity := range merged {
		lines = append(lines, OrderLineInput{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(lines, func(i, j int) bool {
		return position[lines[i].ProductID] < position[lines[j].ProductID]
	})
	return lines, nil
}

func validatePricingPolicy(policy domain.PricingPolicy) error {
	if policy.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", ErrPricingInvalidInput)
	}
	if policy.ShippingFee.IsNegative() {
		return fmt.Errorf("%w: shipping fee must not be negative", ErrPricingInvalidInput)
	}
	if policy.Discount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", ErrPricingInvalidInput)
	}
	return nil
}
