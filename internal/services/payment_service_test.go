package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/payments"
)

type fakePSP struct {
	intents    int
	intentErr  error
	lastIntent payments.IntentRequest

	refunds    int
	refundErr  error
	lastRefund payments.RefundRequest

	lookups      int
	lookupErr    error
	lookupStatus payments.Status
	lastLookup   payments.LookupRequest
}

func (f *fakePSP) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.PaymentDetails, error) {
	f.intents++
	f.lastIntent = req
	if f.intentErr != nil {
		return payments.PaymentDetails{}, f.intentErr
	}
	return payments.PaymentDetails{Status: payments.StatusPending, IntentID: "pi_" + req.PaymentID}, nil
}

func (f *fakePSP) Refund(_ context.Context, req payments.RefundRequest) (payments.PaymentDetails, error) {
	f.refunds++
	f.lastRefund = req
	if f.refundErr != nil {
		return payments.PaymentDetails{}, f.refundErr
	}
	return payments.PaymentDetails{Status: payments.StatusRefunded, IntentID: req.IntentID}, nil
}

func (f *fakePSP) LookupPayment(_ context.Context, req payments.LookupRequest) (payments.PaymentDetails, error) {
	f.lookups++
	f.lastLookup = req
	if f.lookupErr != nil {
		return payments.PaymentDetails{}, f.lookupErr
	}
	return payments.PaymentDetails{Status: f.lookupStatus, IntentID: req.IntentID}, nil
}

func managerWith(t *testing.T, psp payments.Provider) *payments.Manager {
	t.Helper()
	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": psp})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func orderRepoWith(order domain.Order) *stubOrderRepo {
	return &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != order.ID {
				return domain.Order{}, stubRepoError{notFound: true}
			}
			return order, nil
		},
	}
}

func TestCreatePaymentSnapshotsOrderTotal(t *testing.T) {
	now := time.Date(2026, time.March, 14, 11, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:     "ord_1",
		UserID: "user-1",
		Total:  decimal.RequireFromString("23.00"),
	}

	var inserted *domain.Payment
	repo := &stubPaymentRepo{
		insertFn: func(_ context.Context, payment domain.Payment) error {
			inserted = &payment
			return nil
		},
	}
	events := &captureOrderEvents{}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:      orderRepoWith(order),
		Payments:    repo,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("SEQ"),
		Events:      events,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Provider: "stripe",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected PENDING, got %s", payment.Status)
	}
	if !payment.Amount.Equal(order.Total) {
		t.Fatalf("amount %s does not snapshot order total %s", payment.Amount, order.Total)
	}
	if inserted == nil || inserted.OrderID != "ord_1" {
		t.Fatal("expected payment insert keyed to order")
	}
	if len(events.events) != 1 || events.events[0].Type != "payment.created" {
		t.Fatalf("expected payment.created event, got %+v", events.events)
	}
}

func TestCreatePaymentDuplicateRejected(t *testing.T) {
	order := domain.Order{ID: "ord_1", UserID: "user-1", Total: decimal.RequireFromString("23.00")}
	repo := &stubPaymentRepo{
		insertFn: func(context.Context, domain.Payment) error {
			return stubRepoError{conflict: true}
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   orderRepoWith(order),
		Payments: repo,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Provider: "stripe",
	})
	if !errors.Is(err, ErrPaymentAlreadyExists) {
		t.Fatalf("expected ErrPaymentAlreadyExists, got %v", err)
	}
}

func TestCreatePaymentOwnerOrAdminOnly(t *testing.T) {
	order := domain.Order{ID: "ord_1", UserID: "user-1", Total: decimal.RequireFromString("23.00")}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   orderRepoWith(order),
		Payments: &stubPaymentRepo{},
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:  "ord_1",
		CallerID: "user-2",
		Provider: "stripe",
	})
	if !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected ErrPaymentForbidden, got %v", err)
	}

	if _, err := svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:     "ord_1",
		CallerID:    "staff-1",
		CallerAdmin: true,
		Provider:    "stripe",
	}); err != nil {
		t.Fatalf("expected admin create to succeed, got %v", err)
	}
}

func TestCreatePaymentOpensProviderIntent(t *testing.T) {
	order := domain.Order{ID: "ord_1", UserID: "user-1", Total: decimal.RequireFromString("23.00")}
	psp := &fakePSP{}

	var inserted *domain.Payment
	repo := &stubPaymentRepo{
		insertFn: func(_ context.Context, payment domain.Payment) error {
			inserted = &payment
			return nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:      orderRepoWith(order),
		Payments:    repo,
		Provider:    managerWith(t, psp),
		IDGenerator: sequentialIDs("SEQ"),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Provider: "stripe",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if psp.intents != 1 {
		t.Fatalf("expected one intent, got %d", psp.intents)
	}
	if psp.lastIntent.Amount != 2300 {
		t.Fatalf("expected amount 2300 minor units, got %d", psp.lastIntent.Amount)
	}
	if psp.lastIntent.Currency != "usd" {
		t.Fatalf("expected usd currency, got %s", psp.lastIntent.Currency)
	}
	if psp.lastIntent.IdempotencyKey != "intent_pay_SEQ001" {
		t.Fatalf("unexpected idempotency key %s", psp.lastIntent.IdempotencyKey)
	}
	if payment.TransactionID != "pi_pay_SEQ001" {
		t.Fatalf("expected stored intent id, got %s", payment.TransactionID)
	}
	if inserted == nil || inserted.TransactionID != "pi_pay_SEQ001" {
		t.Fatal("expected intent id persisted with the payment")
	}
}

func TestCreatePaymentKeepsCallerTransactionID(t *testing.T) {
	order := domain.Order{ID: "ord_1", UserID: "user-1", Total: decimal.RequireFromString("23.00")}
	psp := &fakePSP{}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   orderRepoWith(order),
		Payments: &stubPaymentRepo{},
		Provider: managerWith(t, psp),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:       "ord_1",
		CallerID:      "user-1",
		Provider:      "stripe",
		TransactionID: "pi_external",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if psp.intents != 0 {
		t.Fatalf("expected no intent call, got %d", psp.intents)
	}
	if payment.TransactionID != "pi_external" {
		t.Fatalf("expected caller transaction id kept, got %s", payment.TransactionID)
	}
}

func TestCreatePaymentIntentFailureInsertsNothing(t *testing.T) {
	order := domain.Order{ID: "ord_1", UserID: "user-1", Total: decimal.RequireFromString("23.00")}
	psp := &fakePSP{intentErr: errors.New("stripe down")}

	inserts := 0
	repo := &stubPaymentRepo{
		insertFn: func(context.Context, domain.Payment) error {
			inserts++
			return nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   orderRepoWith(order),
		Payments: repo,
		Provider: managerWith(t, psp),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.CreatePayment(context.Background(), CreatePaymentCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Provider: "stripe",
	})
	if !errors.Is(err, ErrPaymentProviderUnavailable) {
		t.Fatalf("expected ErrPaymentProviderUnavailable, got %v", err)
	}
	if inserts != 0 {
		t.Fatalf("expected no insert after intent failure, got %d", inserts)
	}
}

func TestUpdateStatusReconcilesWithProvider(t *testing.T) {
	stored := domain.Payment{
		ID:            "pay_1",
		OrderID:       "ord_1",
		Provider:      "stripe",
		Status:        domain.PaymentStatusPending,
		TransactionID: "pi_original",
	}
	psp := &fakePSP{lookupStatus: payments.StatusSucceeded}

	var updated *domain.Payment
	repo := &stubPaymentRepo{
		findFn: func(context.Context, string) (domain.Payment, error) {
			return stored, nil
		},
		updateFn: func(_ context.Context, payment domain.Payment) error {
			updated = &payment
			return nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: repo,
		Provider: managerWith(t, psp),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.UpdateStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: "ord_1",
		Status:  "failed",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if psp.lookups != 1 || psp.lastLookup.IntentID != "pi_original" {
		t.Fatalf("expected lookup of pi_original, got %+v", psp.lastLookup)
	}
	if payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected provider status PAID to win, got %s", payment.Status)
	}
	if updated == nil || updated.Status != domain.PaymentStatusPaid {
		t.Fatal("expected reconciled status persisted")
	}
}

func TestUpdateStatusLookupFailureKeepsClaim(t *testing.T) {
	stored := domain.Payment{
		ID:            "pay_1",
		OrderID:       "ord_1",
		Provider:      "stripe",
		Status:        domain.PaymentStatusPending,
		TransactionID: "pi_original",
	}
	psp := &fakePSP{lookupErr: errors.New("stripe down")}

	repo := &stubPaymentRepo{
		findFn: func(context.Context, string) (domain.Payment, error) {
			return stored, nil
		},
		updateFn: func(context.Context, domain.Payment) error {
			return nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: repo,
		Provider: managerWith(t, psp),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.UpdateStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: "ord_1",
		Status:  "paid",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected callback status kept on lookup failure, got %s", payment.Status)
	}
}

func TestUpdateStatusOverwritesAndPreservesTransactionID(t *testing.T) {
	stored := domain.Payment{
		ID:            "pay_1",
		OrderID:       "ord_1",
		Status:        domain.PaymentStatusPending,
		TransactionID: "pi_original",
	}
	var updated *domain.Payment
	repo := &stubPaymentRepo{
		findFn: func(context.Context, string) (domain.Payment, error) {
			return stored, nil
		},
		updateFn: func(_ context.Context, payment domain.Payment) error {
			updated = &payment
			return nil
		},
	}
	events := &captureOrderEvents{}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: repo,
		Events:   events,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.UpdateStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: "ord_1",
		Status:  "paid",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected PAID, got %s", payment.Status)
	}
	if payment.TransactionID != "pi_original" {
		t.Fatalf("expected preserved transaction id, got %s", payment.TransactionID)
	}
	if updated == nil {
		t.Fatal("expected payment update")
	}

	payment, err = svc.UpdateStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID:       "ord_1",
		Status:        "FAILED",
		TransactionID: "pi_replacement",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if payment.TransactionID != "pi_replacement" {
		t.Fatalf("expected replaced transaction id, got %s", payment.TransactionID)
	}

	if len(events.events) != 2 || events.events[0].Type != "payment.status.changed" {
		t.Fatalf("expected status changed events, got %+v", events.events)
	}
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: &stubPaymentRepo{},
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), UpdatePaymentStatusCommand{
		OrderID: "ord_1",
		Status:  "SETTLED",
	})
	if !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
	}
}

func TestRefundRequiresAdmin(t *testing.T) {
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: &stubPaymentRepo{},
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.Refund(context.Background(), RefundPaymentCommand{OrderID: "ord_1", CallerID: "user-1"})
	if !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected ErrPaymentForbidden, got %v", err)
	}
}

func TestRefundOnlyFromPaid(t *testing.T) {
	updated := false
	repo := &stubPaymentRepo{
		findFn: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{ID: "pay_1", OrderID: "ord_1", Status: domain.PaymentStatusPending}, nil
		},
		updateFn: func(context.Context, domain.Payment) error {
			updated = true
			return nil
		},
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: repo,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.Refund(context.Background(), RefundPaymentCommand{
		OrderID:     "ord_1",
		CallerID:    "staff-1",
		CallerAdmin: true,
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
	}
	if updated {
		t.Fatal("expected status unchanged on rejected refund")
	}
}

func TestRefundPaidCallsProviderAndFlipsStatus(t *testing.T) {
	stored := domain.Payment{
		ID:            "pay_1",
		OrderID:       "ord_1",
		Provider:      "stripe",
		TransactionID: "pi_123",
		Status:        domain.PaymentStatusPaid,
	}
	var updated *domain.Payment
	repo := &stubPaymentRepo{
		findFn: func(context.Context, string) (domain.Payment, error) {
			if updated != nil {
				return *updated, nil
			}
			return stored, nil
		},
		updateFn: func(_ context.Context, payment domain.Payment) error {
			updated = &payment
			return nil
		},
	}
	psp := &fakePSP{}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: repo,
		Provider: managerWith(t, psp),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	payment, err := svc.Refund(context.Background(), RefundPaymentCommand{
		OrderID:     "ord_1",
		CallerID:    "staff-1",
		CallerAdmin: true,
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if payment.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", payment.Status)
	}
	if psp.refunds != 1 || psp.lastRefund.IntentID != "pi_123" {
		t.Fatalf("expected one provider refund for pi_123, got %+v", psp.lastRefund)
	}

	// Second refund attempt must be rejected, the status is no longer PAID.
	_, err = svc.Refund(context.Background(), RefundPaymentCommand{
		OrderID:     "ord_1",
		CallerID:    "staff-1",
		CallerAdmin: true,
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState on second refund, got %v", err)
	}
	if psp.refunds != 1 {
		t.Fatalf("expected no second provider refund, got %d", psp.refunds)
	}
}

func TestRefundProviderFailureLeavesStatus(t *testing.T) {
	repo := &stubPaymentRepo{
		findFn: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{
				ID:            "pay_1",
				OrderID:       "ord_1",
				Provider:      "stripe",
				TransactionID: "pi_123",
				Status:        domain.PaymentStatusPaid,
			}, nil
		},
		updateFn: func(context.Context, domain.Payment) error {
			t.Fatal("unexpected payment update after provider failure")
			return nil
		},
	}
	psp := &fakePSP{refundErr: errors.New("gateway down")}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: repo,
		Provider: managerWith(t, psp),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	_, err = svc.Refund(context.Background(), RefundPaymentCommand{
		OrderID:     "ord_1",
		CallerID:    "staff-1",
		CallerAdmin: true,
	})
	if !errors.Is(err, ErrPaymentProviderUnavailable) {
		t.Fatalf("expected ErrPaymentProviderUnavailable, got %v", err)
	}
}
