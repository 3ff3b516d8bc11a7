package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix   = "ord_"
	itemIDPrefix    = "itm_"
	addressIDPrefix = "adr_"
	paymentIDPrefix = "pay_"
)

var (
	// ErrOrderUnauthenticated signals the caller identity could not be resolved.
	ErrOrderUnauthenticated = errors.New("order: unauthenticated")
	// ErrOrderForbidden signals the caller lacks rights over the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an operation not legal in the order's
	// current status, such as cancelling a shipped order.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a conditional write lost a race and the
	// request is safe to retry.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Addresses   repositories.ShippingAddressRepository
	Payments    repositories.PaymentRepository
	Stock       repositories.StockLedger
	Pricing     *PricingEngine
	Policy      domain.PricingPolicy
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	addresses  repositories.ShippingAddressRepository
	payments   repositories.PaymentRepository
	stock      repositories.StockLedger
	pricing    *PricingEngine
	policy     domain.PricingPolicy
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock ledger is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		addresses:  deps.Addresses,
		payments:   deps.Payments,
		stock:      deps.Stock,
		pricing:    deps.Pricing,
		policy:     deps.Policy,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateOrder prices the requested lines, then reserves stock and persists
// the order, its item snapshots, and the optional address and payment as one
// atomic unit. Any failure inside the unit rolls everything back.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: caller identity is required", ErrOrderUnauthenticated)
	}

	if cmd.Address != nil {
		if err := validateAddressInput(*cmd.Address); err != nil {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}
	if cmd.Payment != nil && strings.TrimSpace(cmd.Payment.Provider) == "" {
		return domain.Order{}, fmt.Errorf("%w: payment provider is required", ErrOrderInvalidInput)
	}

	priced, err := s.pricing.PriceItems(ctx, PriceItemsCommand{Items: cmd.Items, Policy: s.policy})
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:          orderIDPrefix + s.newID(),
		UserID:      userID,
		Status:      domain.OrderStatusPending,
		Subtotal:    priced.Totals.Subtotal,
		Tax:         priced.Totals.Tax,
		Discount:    priced.Totals.Discount,
		ShippingFee: priced.Totals.ShippingFee,
		Total:       priced.Totals.Total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	items := make([]domain.OrderItem, len(priced.Lines))
	stockLines := make([]repositories.StockLine, len(priced.Lines))
	for i, line := range priced.Lines {
		items[i] = domain.OrderItem{
			ID:          itemIDPrefix + s.newID(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ImageURL:    line.ImageURL,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal,
		}
		stockLines[i] = repositories.StockLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	var address *domain.ShippingAddress
	if cmd.Address != nil {
		built := buildShippingAddress(addressIDPrefix+s.newID(), order.ID, *cmd.Address, now)
		address = &built
	}

	var payment *domain.Payment
	if cmd.Payment != nil {
		payment = &domain.Payment{
			ID:            paymentIDPrefix + s.newID(),
			OrderID:       order.ID,
			Amount:        order.Total,
			Provider:      strings.TrimSpace(cmd.Payment.Provider),
			TransactionID: strings.TrimSpace(cmd.Payment.TransactionID),
			Status:        domain.PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.stock.Reserve(txCtx, repositories.StockAdjustment{Lines: stockLines, Now: now}); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.InsertItems(txCtx, items); err != nil {
			return s.mapRepositoryError(err)
		}
		if address != nil {
			if s.addresses == nil {
				return errors.New("order service: address repository not configured")
			}
			if err := s.addresses.Insert(txCtx, *address); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if payment != nil {
			if s.payments == nil {
				return errors.New("order service: payment repository not configured")
			}
			if err := s.payments.Insert(txCtx, *payment); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	order.Items = items
	order.Address = address
	order.Payment = payment

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total": order.Total.String(),
			"items": len(order.Items),
		},
	})

	return order, nil
}

// CancelOrder is the self-service cancellation path. It is gated to the
// order's owner and to the PENDING status, and restores every reserved
// quantity in the same unit that flips the status to CANCELED.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	callerID := strings.TrimSpace(cmd.CallerID)
	if callerID == "" {
		return domain.Order{}, fmt.Errorf("%w: caller identity is required", ErrOrderUnauthenticated)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != callerID {
		return domain.Order{}, fmt.Errorf("%w: only the order owner may cancel", ErrOrderForbidden)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, fmt.Errorf("%w: order cannot be canceled at this stage", ErrOrderInvalidState)
	}

	// Items are immutable after creation, so reading them outside the unit is
	// safe. The status gate is re-checked inside the unit to close the race
	// with a concurrent transition.
	items, err := s.orders.ListItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	stockLines := make([]repositories.StockLine, len(items))
	for i, item := range items {
		stockLines[i] = repositories.StockLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	now := s.now()
	prevStatus := order.Status

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order cannot be canceled at this stage", ErrOrderInvalidState)
		}
		if err := s.stock.Release(txCtx, repositories.StockAdjustment{Lines: stockLines, Now: now}); err != nil {
			return s.mapRepositoryError(err)
		}
		current.Status = domain.OrderStatusCanceled
		current.UpdatedAt = now
		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	order.Items = items

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        callerID,
		OccurredAt:     now,
	})

	return order, nil
}

// SetStatus is the administrative override. It accepts any declared status
// value and deliberately runs no stock side effects; stock restoration only
// happens on the self-service cancellation path.
func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (domain.Order, error) {
	if !cmd.CallerAdmin {
		return domain.Order{}, fmt.Errorf("%w: administrator capability is required", ErrOrderForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	status, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: invalid order status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.now()
	var order domain.Order
	var prevStatus domain.OrderStatus

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		prevStatus = current.Status
		current.Status = status
		current.UpdatedAt = now
		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if prevStatus != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			UserID:         order.UserID,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(order.Status),
			ActorID:        strings.TrimSpace(cmd.CallerID),
			OccurredAt:     now,
		})
	}

	return order, nil
}

// GetOrder returns the full aggregate: header, item snapshots, and the
// address and payment when present.
func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (domain.Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	callerID := strings.TrimSpace(query.CallerID)
	if callerID == "" && !query.CallerAdmin {
		return domain.Order{}, fmt.Errorf("%w: caller identity is required", ErrOrderUnauthenticated)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !query.CallerAdmin && order.UserID != callerID {
		return domain.Order{}, fmt.Errorf("%w: caller does not own this order", ErrOrderForbidden)
	}

	items, err := s.orders.ListItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	order.Items = items

	if s.addresses != nil {
		address, err := s.addresses.FindByOrder(ctx, orderID)
		switch {
		case err == nil:
			order.Address = &address
		case isRepositoryNotFound(err):
		default:
			return domain.Order{}, s.mapRepositoryError(err)
		}
	}

	if s.payments != nil {
		payment, err := s.payments.FindByOrder(ctx, orderID)
		switch {
		case err == nil:
			order.Payment = &payment
		case isRepositoryNotFound(err):
		default:
			return domain.Order{}, s.mapRepositoryError(err)
		}
	}

	return order, nil
}

// ListOrders returns order headers newest first, cursor paged.
func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	filter := repositories.OrderListFilter{
		UserID: strings.TrimSpace(query.UserID),
		Status: query.Status,
		DateRange: domain.RangeQuery[time.Time]{
			From: query.CreatedFrom,
			To:   query.CreatedTo,
		},
		Pagination: query.Pagination,
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: stock changed, retry: %v", ErrOrderConflict, err)
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func buildShippingAddress(id, orderID string, input AddressInput, now time.Time) domain.ShippingAddress {
	return domain.ShippingAddress{
		ID:            id,
		OrderID:       orderID,
		RecipientName: strings.TrimSpace(input.RecipientName),
		Phone:         strings.TrimSpace(input.Phone),
		Line1:         strings.TrimSpace(input.Line1),
		Line2:         strings.TrimSpace(input.Line2),
		City:          strings.TrimSpace(input.City),
		State:         strings.TrimSpace(input.State),
		PostalCode:    strings.TrimSpace(input.PostalCode),
		Country:       strings.TrimSpace(input.Country),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func validateAddressInput(input AddressInput) error {
	required := []struct {
		field string
		value string
	}{
		{"recipient name", input.RecipientName},
		{"phone", input.Phone},
		{"line1", input.Line1},
		{"city", input.City},
		{"state", input.State},
		{"postal code", input.PostalCode},
		{"country", input.Country},
	}
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			return fmt.Errorf("address %s is required", item.field)
		}
	}
	return nil
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
