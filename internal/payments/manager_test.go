package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateIntent(ctx context.Context, req IntentRequest) (PaymentDetails, error) {
	f.lastOp = "create"
	return f.payment, f.err
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	f.lastOp = "refund"
	return f.payment, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{"": &fakeProvider{}}); err == nil {
		t.Fatal("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"stripe": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestManagerDefaultsToStripe(t *testing.T) {
	stripe := &fakeProvider{payment: PaymentDetails{IntentID: "pi_1"}}
	other := &fakeProvider{}
	manager, err := NewManager(map[string]Provider{"stripe": stripe, "mock": other})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	details, err := manager.CreateIntent(context.Background(), "", IntentRequest{Amount: 100, Currency: "usd"})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if stripe.lastOp != "create" {
		t.Errorf("expected stripe provider to receive the call, lastOp=%q", stripe.lastOp)
	}
	if details.Provider != "stripe" {
		t.Errorf("expected provider stamp stripe, got %q", details.Provider)
	}
}

func TestManagerPreferredProvider(t *testing.T) {
	stripe := &fakeProvider{}
	mock := &fakeProvider{payment: PaymentDetails{IntentID: "pi_2"}}
	manager, err := NewManager(map[string]Provider{"stripe": stripe, "mock": mock})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := manager.Refund(context.Background(), "Mock", RefundRequest{IntentID: "pi_2"}); err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if mock.lastOp != "refund" {
		t.Errorf("expected mock provider to receive refund, lastOp=%q", mock.lastOp)
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = manager.LookupPayment(context.Background(), "adyen", LookupRequest{IntentID: "pi_3"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerPropagatesProviderError(t *testing.T) {
	boom := errors.New("psp down")
	manager, err := NewManager(map[string]Provider{"stripe": &fakeProvider{err: boom}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := manager.CreateIntent(context.Background(), "", IntentRequest{Amount: 100}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
