package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/lumenshop/api/internal/platform/firestore"
	"github.com/lumenshop/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the registry
// interface consumed by the service layer.
type Registry struct {
	provider  *pfirestore.Provider
	products  *ProductRepository
	stock     *StockLedger
	orders    *OrderRepository
	payments  *PaymentRepository
	addresses *ShippingAddressRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the registry from a shared provider. The health
// repository is injected because its probe set spans more than Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if health == nil {
		return nil, errors.New("registry requires health repository")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockLedger(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewShippingAddressRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		products:  products,
		stock:     stock,
		orders:    orders,
		payments:  payments,
		addresses: addresses,
		health:    health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository          { return r.products }
func (r *Registry) Stock() repositories.StockLedger                  { return r.stock }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository         { return r.payments }
func (r *Registry) Addresses() repositories.ShippingAddressRepository { return r.addresses }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

// RunInTx opens a Firestore transaction and stores it on the context so every
// repository call inside fn joins it. Nested calls reuse the same transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
