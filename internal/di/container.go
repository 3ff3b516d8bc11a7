package di

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/payments"
	"github.com/lumenshop/api/internal/platform/config"
	"github.com/lumenshop/api/internal/repositories"
	"github.com/lumenshop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Pricing   *services.PricingEngine
	Orders    services.OrderService
	Payments  services.PaymentService
	Addresses services.AddressService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Deps carries the optional collaborators injected alongside the registry.
type Deps struct {
	PaymentManager *payments.Manager
	OrderEvents    services.OrderEventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// the Firestore registry; tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository-held resources such as the Firestore client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, deps Deps) (Services, error) {
	var svc Services

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Products: reg.Products(),
		Logger:   deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Addresses:  reg.Addresses(),
		Payments:   reg.Payments(),
		Stock:      reg.Stock(),
		Pricing:    pricing,
		Policy:     pricingPolicy(cfg),
		UnitOfWork: reg,
		Events:     deps.OrderEvents,
		Logger:     deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	paymentsSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:   reg.Orders(),
		Payments: reg.Payments(),
		Provider: deps.PaymentManager,
		Events:   deps.OrderEvents,
		Logger:   deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentsSvc

	addresses, err := services.NewAddressService(services.AddressServiceDeps{
		Orders:    reg.Orders(),
		Addresses: reg.Addresses(),
		Logger:    deps.Logger,
	})
	if err != nil {
		return svc, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addresses

	return svc, nil
}

func pricingPolicy(cfg config.Config) domain.PricingPolicy {
	return domain.PricingPolicy{
		TaxRate:     cfg.Pricing.TaxRate,
		ShippingFee: cfg.Pricing.ShippingFee,
		Discount:    cfg.Pricing.Discount,
	}
}
