package repositories

import (
	"context"
	"time"

	domain "github.com/lumenshop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Stock() StockLedger
	Orders() OrderRepository
	Payments() PaymentRepository
	Addresses() ShippingAddressRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into a single atomic boundary. Every
// write issued through the callback's context commits or aborts together.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository serves catalog reads and administrative upserts.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs returns the products for the requested identifiers keyed by ID.
	// Missing identifiers are absent from the map rather than an error.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) error
}

// StockLedger owns stock counts and performs conditional adjustments.
type StockLedger interface {
	// Reserve atomically decrements stock for every line. Either all lines are
	// applied or none; a shortage on any line fails the whole request.
	Reserve(ctx context.Context, req StockAdjustment) error
	// Release returns previously reserved quantities back to stock.
	Release(ctx context.Context, req StockAdjustment) error
}

// StockAdjustment carries the per-product quantities of a reserve or release.
type StockAdjustment struct {
	Lines []StockLine
	Now   time.Time
}

// StockLine pairs a product with the quantity being adjusted.
type StockLine struct {
	ProductID string
	Quantity  int
}

// OrderRepository persists order headers and their immutable item snapshots.
// Items are separate records linked by order id, written once at insert and
// never mutated afterwards.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	InsertItems(ctx context.Context, items []domain.OrderItem) error
	ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PaymentRepository stores the payment record attached to an order.
// Payments are keyed by order so at most one payment exists per order.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
}

// ShippingAddressRepository stores the order's shipping address snapshot.
// Addresses are keyed by order so at most one address exists per order.
type ShippingAddressRepository interface {
	Insert(ctx context.Context, address domain.ShippingAddress) error
	Update(ctx context.Context, address domain.ShippingAddress) error
	Delete(ctx context.Context, orderID string) error
	FindByOrder(ctx context.Context, orderID string) (domain.ShippingAddress, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter restricts and pages order listings.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
