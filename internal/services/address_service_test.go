package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lumenshop/api/internal/domain"
)

func validAddressInput() AddressInput {
	return AddressInput{
		RecipientName: "Dana Smith",
		Phone:         "+1-555-0101",
		Line1:         "12 Elm Street",
		City:          "Springfield",
		State:         "IL",
		PostalCode:    "62704",
		Country:       "US",
	}
}

func newAddressService(t *testing.T, orders *stubOrderRepo, addresses *stubAddressRepo) AddressService {
	t.Helper()
	svc, err := NewAddressService(AddressServiceDeps{
		Orders:      orders,
		Addresses:   addresses,
		Clock:       fixedClock(time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)),
		IDGenerator: sequentialIDs("SEQ"),
	})
	if err != nil {
		t.Fatalf("NewAddressService: %v", err)
	}
	return svc
}

func TestCreateAddressAttachesToOrder(t *testing.T) {
	orders := orderRepoWith(domain.Order{ID: "ord_1", UserID: "user-1"})
	var inserted *domain.ShippingAddress
	addresses := &stubAddressRepo{
		insertFn: func(_ context.Context, address domain.ShippingAddress) error {
			inserted = &address
			return nil
		},
	}
	svc := newAddressService(t, orders, addresses)

	address, err := svc.CreateAddress(context.Background(), CreateAddressCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Address:  validAddressInput(),
	})
	if err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	if address.OrderID != "ord_1" {
		t.Fatalf("expected address keyed to order, got %s", address.OrderID)
	}
	if inserted == nil || inserted.RecipientName != "Dana Smith" {
		t.Fatalf("expected insert with postal fields, got %+v", inserted)
	}
}

func TestCreateAddressDuplicateRejected(t *testing.T) {
	orders := orderRepoWith(domain.Order{ID: "ord_1", UserID: "user-1"})
	addresses := &stubAddressRepo{
		insertFn: func(context.Context, domain.ShippingAddress) error {
			return stubRepoError{conflict: true}
		},
	}
	svc := newAddressService(t, orders, addresses)

	_, err := svc.CreateAddress(context.Background(), CreateAddressCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Address:  validAddressInput(),
	})
	if !errors.Is(err, ErrAddressAlreadyExists) {
		t.Fatalf("expected ErrAddressAlreadyExists, got %v", err)
	}
}

func TestCreateAddressValidatesRequiredFields(t *testing.T) {
	orders := orderRepoWith(domain.Order{ID: "ord_1", UserID: "user-1"})
	svc := newAddressService(t, orders, &stubAddressRepo{})

	input := validAddressInput()
	input.PostalCode = ""
	_, err := svc.CreateAddress(context.Background(), CreateAddressCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Address:  input,
	})
	if !errors.Is(err, ErrAddressInvalidInput) {
		t.Fatalf("expected ErrAddressInvalidInput, got %v", err)
	}
}

func TestUpdateAddressPreservesIdentityAndCreatedAt(t *testing.T) {
	createdAt := time.Date(2026, time.January, 2, 8, 0, 0, 0, time.UTC)
	orders := orderRepoWith(domain.Order{ID: "ord_1", UserID: "user-1"})
	var updated *domain.ShippingAddress
	addresses := &stubAddressRepo{
		findFn: func(context.Context, string) (domain.ShippingAddress, error) {
			return domain.ShippingAddress{ID: "adr_1", OrderID: "ord_1", CreatedAt: createdAt}, nil
		},
		updateFn: func(_ context.Context, address domain.ShippingAddress) error {
			updated = &address
			return nil
		},
	}
	svc := newAddressService(t, orders, addresses)

	input := validAddressInput()
	input.Line1 = "99 Oak Avenue"
	address, err := svc.UpdateAddress(context.Background(), UpdateAddressCommand{
		OrderID:  "ord_1",
		CallerID: "user-1",
		Address:  input,
	})
	if err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	if address.ID != "adr_1" {
		t.Fatalf("expected stable address id, got %s", address.ID)
	}
	if !address.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected preserved CreatedAt, got %s", address.CreatedAt)
	}
	if updated == nil || updated.Line1 != "99 Oak Avenue" {
		t.Fatalf("expected updated line1, got %+v", updated)
	}
}

func TestDeleteAddressOwnerOrAdminOnly(t *testing.T) {
	orders := orderRepoWith(domain.Order{ID: "ord_1", UserID: "user-1"})
	deleted := 0
	addresses := &stubAddressRepo{
		findFn: func(context.Context, string) (domain.ShippingAddress, error) {
			return domain.ShippingAddress{ID: "adr_1", OrderID: "ord_1"}, nil
		},
		deleteFn: func(context.Context, string) error {
			deleted++
			return nil
		},
	}
	svc := newAddressService(t, orders, addresses)

	err := svc.DeleteAddress(context.Background(), DeleteAddressCommand{OrderID: "ord_1", CallerID: "user-2"})
	if !errors.Is(err, ErrAddressForbidden) {
		t.Fatalf("expected ErrAddressForbidden, got %v", err)
	}
	if deleted != 0 {
		t.Fatal("expected no delete for foreign caller")
	}

	if err := svc.DeleteAddress(context.Background(), DeleteAddressCommand{OrderID: "ord_1", CallerID: "user-1"}); err != nil {
		t.Fatalf("DeleteAddress: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one delete, got %d", deleted)
	}
}

func TestGetAddressNotFound(t *testing.T) {
	orders := orderRepoWith(domain.Order{ID: "ord_1", UserID: "user-1"})
	svc := newAddressService(t, orders, &stubAddressRepo{})

	_, err := svc.GetAddress(context.Background(), GetAddressQuery{OrderID: "ord_1", CallerID: "user-1"})
	if !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound, got %v", err)
	}
}
