package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/repositories"
)

var (
	// ErrAddressUnauthenticated signals the caller identity could not be resolved.
	ErrAddressUnauthenticated = errors.New("address: unauthenticated")
	// ErrAddressForbidden signals the caller lacks rights over the order.
	ErrAddressForbidden = errors.New("address: forbidden")
	// ErrAddressInvalidInput signals the caller provided invalid data.
	ErrAddressInvalidInput = errors.New("address: invalid input")
	// ErrAddressNotFound indicates the address or its order could not be located.
	ErrAddressNotFound = errors.New("address: not found")
	// ErrAddressAlreadyExists indicates the order already carries an address.
	ErrAddressAlreadyExists = errors.New("address: already exists")
)

// AddressServiceDeps bundles collaborators required to construct the address service.
type AddressServiceDeps struct {
	Orders      repositories.OrderRepository
	Addresses   repositories.ShippingAddressRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	orders    repositories.OrderRepository
	addresses repositories.ShippingAddressRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewAddressService wires dependencies into a concrete AddressService implementation.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Orders == nil {
		return nil, errors.New("address service: order repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
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

	return &addressService{
		orders:    deps.Orders,
		addresses: deps.Addresses,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateAddress attaches the single shipping address to an order. Creating a
// second address on the same order fails and leaves the first untouched.
func (s *addressService) CreateAddress(ctx context.Context, cmd CreateAddressCommand) (domain.ShippingAddress, error) {
	order, err := s.authorize(ctx, cmd.OrderID, cmd.CallerID, cmd.CallerAdmin)
	if err != nil {
		return domain.ShippingAddress{}, err
	}
	if err := validateAddressInput(cmd.Address); err != nil {
		return domain.ShippingAddress{}, fmt.Errorf("%w: %v", ErrAddressInvalidInput, err)
	}

	now := s.now()
	address := buildShippingAddress(addressIDPrefix+s.newID(), order.ID, cmd.Address, now)
	if err := s.addresses.Insert(ctx, address); err != nil {
		return domain.ShippingAddress{}, s.mapRepositoryError(err)
	}
	return address, nil
}

// UpdateAddress replaces the postal fields of the existing address.
func (s *addressService) UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (domain.ShippingAddress, error) {
	order, err := s.authorize(ctx, cmd.OrderID, cmd.CallerID, cmd.CallerAdmin)
	if err != nil {
		return domain.ShippingAddress{}, err
	}
	if err := validateAddressInput(cmd.Address); err != nil {
		return domain.ShippingAddress{}, fmt.Errorf("%w: %v", ErrAddressInvalidInput, err)
	}

	existing, err := s.addresses.FindByOrder(ctx, order.ID)
	if err != nil {
		return domain.ShippingAddress{}, s.mapRepositoryError(err)
	}

	now := s.now()
	updated := buildShippingAddress(existing.ID, order.ID, cmd.Address, now)
	updated.CreatedAt = existing.CreatedAt
	if err := s.addresses.Update(ctx, updated); err != nil {
		return domain.ShippingAddress{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

// DeleteAddress removes the address attached to an order.
func (s *addressService) DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error {
	order, err := s.authorize(ctx, cmd.OrderID, cmd.CallerID, cmd.CallerAdmin)
	if err != nil {
		return err
	}
	if _, err := s.addresses.FindByOrder(ctx, order.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.addresses.Delete(ctx, order.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// GetAddress returns the address attached to an order.
func (s *addressService) GetAddress(ctx context.Context, query GetAddressQuery) (domain.ShippingAddress, error) {
	order, err := s.authorize(ctx, query.OrderID, query.CallerID, query.CallerAdmin)
	if err != nil {
		return domain.ShippingAddress{}, err
	}
	address, err := s.addresses.FindByOrder(ctx, order.ID)
	if err != nil {
		return domain.ShippingAddress{}, s.mapRepositoryError(err)
	}
	return address, nil
}

// authorize resolves the order and enforces the owner-or-admin rule.
func (s *addressService) authorize(ctx context.Context, orderID, callerID string, admin bool) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrAddressInvalidInput)
	}
	callerID = strings.TrimSpace(callerID)
	if callerID == "" && !admin {
		return domain.Order{}, fmt.Errorf("%w: caller identity is required", ErrAddressUnauthenticated)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !admin && order.UserID != callerID {
		return domain.Order{}, fmt.Errorf("%w: caller does not own this order", ErrAddressForbidden)
	}
	return order, nil
}

func (s *addressService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAddressNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAddressAlreadyExists, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("address: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *addressService) now() time.Time {
	return s.clock()
}
