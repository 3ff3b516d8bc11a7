package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/payments"
	"github.com/lumenshop/api/internal/repositories"
)

const (
	paymentEventCreated       = "payment.created"
	paymentEventStatusChanged = "payment.status.changed"

	defaultPaymentCurrency = "usd"
)

var (
	// ErrPaymentUnauthenticated signals the caller identity could not be resolved.
	ErrPaymentUnauthenticated = errors.New("payment: unauthenticated")
	// ErrPaymentForbidden signals the caller lacks rights over the payment.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment or its order could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentAlreadyExists indicates the order already carries a payment.
	ErrPaymentAlreadyExists = errors.New("payment: already exists")
	// ErrPaymentInvalidState indicates an operation not legal in the payment's
	// current status, such as refunding an unpaid payment.
	ErrPaymentInvalidState = errors.New("payment: invalid status transition")
	// ErrPaymentConflict indicates a conditional write lost a race.
	ErrPaymentConflict = errors.New("payment: conflict")

	// ErrPaymentProviderUnavailable indicates the external PSP refused or
	// failed the requested operation.
	ErrPaymentProviderUnavailable = errors.New("payment: provider unavailable")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Provider    *payments.Manager
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	provider *payments.Manager
	currency string
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
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

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultPaymentCurrency
	}

	return &paymentService{
		orders:   deps.Orders,
		payments: deps.Payments,
		provider: deps.Provider,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreatePayment attaches the single payment record to an order, snapshotting
// the order total. When a PSP is configured and the caller did not supply an
// external transaction id, an intent is opened with the provider first and its
// id is stored. A second creation fails and leaves the first untouched.
func (s *paymentService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (domain.Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	callerID := strings.TrimSpace(cmd.CallerID)
	if callerID == "" && !cmd.CallerAdmin {
		return domain.Payment{}, fmt.Errorf("%w: caller identity is required", ErrPaymentUnauthenticated)
	}
	provider := strings.TrimSpace(cmd.Provider)
	if provider == "" {
		return domain.Payment{}, fmt.Errorf("%w: provider is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	if !cmd.CallerAdmin && order.UserID != callerID {
		return domain.Payment{}, fmt.Errorf("%w: caller does not own this order", ErrPaymentForbidden)
	}

	now := s.now()
	payment := domain.Payment{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       orderID,
		Amount:        order.Total,
		Provider:      provider,
		TransactionID: strings.TrimSpace(cmd.TransactionID),
		Status:        domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.provider != nil && payment.TransactionID == "" {
		details, err := s.provider.CreateIntent(ctx, provider, payments.IntentRequest{
			OrderID:        orderID,
			PaymentID:      payment.ID,
			Amount:         minorUnits(order.Total),
			Currency:       s.currency,
			IdempotencyKey: "intent_" + payment.ID,
			Metadata: map[string]string{
				"orderId":   orderID,
				"paymentId": payment.ID,
			},
		})
		if err != nil {
			return domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
		}
		payment.TransactionID = details.IntentID
		if details.Provider != "" {
			payment.Provider = details.Provider
		}
	}

	if err := s.payments.Insert(ctx, payment); err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          paymentEventCreated,
		OrderID:       orderID,
		UserID:        order.UserID,
		CurrentStatus: string(payment.Status),
		ActorID:       callerID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentId": payment.ID,
			"amount":    payment.Amount.String(),
			"provider":  payment.Provider,
		},
	})

	return payment, nil
}

// UpdateStatus applies a gateway callback: the target status overwrites the
// current one and a supplied transaction id replaces the stored one, while an
// absent one preserves it. When a PSP is configured the intent is looked up
// for reconciliation and the provider's view of the status wins over the
// callback payload. The transport layer authenticates the gateway.
func (s *paymentService) UpdateStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	status, ok := domain.ParsePaymentStatus(cmd.Status)
	if !ok {
		return domain.Payment{}, fmt.Errorf("%w: invalid payment status %q", ErrPaymentInvalidInput, cmd.Status)
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	status = s.reconcileStatus(ctx, payment, strings.TrimSpace(cmd.TransactionID), status)

	now := s.now()
	prevStatus := payment.Status
	payment.Status = status
	if txID := strings.TrimSpace(cmd.TransactionID); txID != "" {
		payment.TransactionID = txID
	}
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	if prevStatus != payment.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           paymentEventStatusChanged,
			OrderID:        orderID,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(payment.Status),
			OccurredAt:     now,
			Metadata: map[string]any{
				"paymentId": payment.ID,
			},
		})
	}

	return payment, nil
}

// Refund is administrator-only and legal only from PAID. When the payment
// carries an external transaction id and a PSP is configured, the provider
// refund runs before the status flip. The order status is never touched.
func (s *paymentService) Refund(ctx context.Context, cmd RefundPaymentCommand) (domain.Payment, error) {
	if !cmd.CallerAdmin {
		return domain.Payment{}, fmt.Errorf("%w: administrator capability is required", ErrPaymentForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	if payment.Status != domain.PaymentStatusPaid {
		return domain.Payment{}, fmt.Errorf("%w: only paid payments can be refunded", ErrPaymentInvalidState)
	}

	now := s.now()

	if s.provider != nil && payment.TransactionID != "" {
		_, err := s.provider.Refund(ctx, payment.Provider, payments.RefundRequest{
			IntentID:       payment.TransactionID,
			IdempotencyKey: "refund_" + payment.ID,
			Metadata: map[string]string{
				"orderId":   payment.OrderID,
				"paymentId": payment.ID,
			},
		})
		if err != nil {
			return domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
		}
	}

	prevStatus := payment.Status
	payment.Status = domain.PaymentStatusRefunded
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           paymentEventStatusChanged,
		OrderID:        orderID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(payment.Status),
		ActorID:        strings.TrimSpace(cmd.CallerID),
		OccurredAt:     now,
		Metadata: map[string]any{
			"paymentId": payment.ID,
			"refund":    true,
		},
	})

	return payment, nil
}

// GetPayment returns the payment attached to an order, owner or admin only.
func (s *paymentService) GetPayment(ctx context.Context, query GetPaymentQuery) (domain.Payment, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	callerID := strings.TrimSpace(query.CallerID)
	if callerID == "" && !query.CallerAdmin {
		return domain.Payment{}, fmt.Errorf("%w: caller identity is required", ErrPaymentUnauthenticated)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	if !query.CallerAdmin && order.UserID != callerID {
		return domain.Payment{}, fmt.Errorf("%w: caller does not own this order", ErrPaymentForbidden)
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	return payment, nil
}

// reconcileStatus asks the configured PSP for its view of the intent. A
// reachable provider is the source of truth for the status; lookup failures
// fall back to the callback payload so an outage never drops a webhook.
func (s *paymentService) reconcileStatus(ctx context.Context, payment domain.Payment, callbackTxID string, claimed domain.PaymentStatus) domain.PaymentStatus {
	if s.provider == nil {
		return claimed
	}
	intentID := callbackTxID
	if intentID == "" {
		intentID = payment.TransactionID
	}
	if intentID == "" {
		return claimed
	}

	details, err := s.provider.LookupPayment(ctx, payment.Provider, payments.LookupRequest{IntentID: intentID})
	if err != nil {
		s.logger(ctx, "payment.reconcile.failed", map[string]any{
			"orderId":   payment.OrderID,
			"paymentId": payment.ID,
			"error":     err.Error(),
		})
		return claimed
	}

	reconciled, ok := paymentStatusFromProvider(details.Status)
	if !ok {
		return claimed
	}
	if reconciled != claimed {
		s.logger(ctx, "payment.reconcile.mismatch", map[string]any{
			"orderId":   payment.OrderID,
			"paymentId": payment.ID,
			"claimed":   string(claimed),
			"provider":  string(reconciled),
		})
	}
	return reconciled
}

func paymentStatusFromProvider(status payments.Status) (domain.PaymentStatus, bool) {
	switch status {
	case payments.StatusPending:
		return domain.PaymentStatusPending, true
	case payments.StatusSucceeded:
		return domain.PaymentStatusPaid, true
	case payments.StatusFailed:
		return domain.PaymentStatusFailed, true
	case payments.StatusRefunded:
		return domain.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// minorUnits converts a decimal amount to the integer minor-unit form PSPs
// expect, rounding half away from zero.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentAlreadyExists, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *paymentService) now() time.Time {
	return s.clock()
}

func (s *paymentService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
