package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/lumenshop/api/internal/domain"
	pfirestore "github.com/lumenshop/api/internal/platform/firestore"
)

const orderAddressesCollection = "orderAddresses"

// ShippingAddressRepository stores the shipping address snapshot keyed by
// order, mirroring the payment layout so the 1:1 rule is structural.
type ShippingAddressRepository struct {
	addresses *pfirestore.BaseRepository[addressDocument]
}

// NewShippingAddressRepository constructs a Firestore-backed address repository.
func NewShippingAddressRepository(provider *pfirestore.Provider) (*ShippingAddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &ShippingAddressRepository{
		addresses: pfirestore.NewBaseRepository[addressDocument](provider, orderAddressesCollection),
	}, nil
}

// Insert creates the address, failing with a conflict when one already exists.
func (r *ShippingAddressRepository) Insert(ctx context.Context, address domain.ShippingAddress) error {
	if r == nil || r.addresses == nil {
		return errors.New("address repository not initialised")
	}
	orderID := strings.TrimSpace(address.OrderID)
	if orderID == "" {
		return errors.New("address insert: order id is required")
	}
	return r.addresses.Create(ctx, orderID, newAddressDocument(address))
}

// Update overwrites the address document.
func (r *ShippingAddressRepository) Update(ctx context.Context, address domain.ShippingAddress) error {
	if r == nil || r.addresses == nil {
		return errors.New("address repository not initialised")
	}
	orderID := strings.TrimSpace(address.OrderID)
	if orderID == "" {
		return errors.New("address update: order id is required")
	}
	return r.addresses.Set(ctx, orderID, newAddressDocument(address))
}

// Delete removes the address attached to the order.
func (r *ShippingAddressRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.addresses == nil {
		return errors.New("address repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("address delete: order id is required")
	}
	return r.addresses.Delete(ctx, orderID)
}

// FindByOrder fetches the address attached to the order.
func (r *ShippingAddressRepository) FindByOrder(ctx context.Context, orderID string) (domain.ShippingAddress, error) {
	if r == nil || r.addresses == nil {
		return domain.ShippingAddress{}, errors.New("address repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ShippingAddress{}, errors.New("address find: order id is required")
	}

	doc, err := r.addresses.Get(ctx, orderID)
	if err != nil {
		return domain.ShippingAddress{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Document mapping ----------------------------------------------------------

type addressDocument struct {
	AddressID     string    `firestore:"addressId"`
	RecipientName string    `firestore:"recipientName"`
	Phone         string    `firestore:"phone,omitempty"`
	Line1         string    `firestore:"line1"`
	Line2         string    `firestore:"line2,omitempty"`
	City          string    `firestore:"city"`
	State         string    `firestore:"state,omitempty"`
	PostalCode    string    `firestore:"postalCode"`
	Country       string    `firestore:"country"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newAddressDocument(address domain.ShippingAddress) addressDocument {
	return addressDocument{
		AddressID:     strings.TrimSpace(address.ID),
		RecipientName: strings.TrimSpace(address.RecipientName),
		Phone:         strings.TrimSpace(address.Phone),
		Line1:         strings.TrimSpace(address.Line1),
		Line2:         strings.TrimSpace(address.Line2),
		City:          strings.TrimSpace(address.City),
		State:         strings.TrimSpace(address.State),
		PostalCode:    strings.TrimSpace(address.PostalCode),
		Country:       strings.TrimSpace(address.Country),
		CreatedAt:     address.CreatedAt.UTC(),
		UpdatedAt:     address.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(orderID string) domain.ShippingAddress {
	return domain.ShippingAddress{
		ID:            d.AddressID,
		OrderID:       orderID,
		RecipientName: d.RecipientName,
		Phone:         d.Phone,
		Line1:         d.Line1,
		Line2:         d.Line2,
		City:          d.City,
		State:         d.State,
		PostalCode:    d.PostalCode,
		Country:       d.Country,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
