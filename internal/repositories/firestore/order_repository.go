package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	domain "github.com/lumenshop/api/internal/domain"
	pfirestore "github.com/lumenshop/api/internal/platform/firestore"
	"github.com/lumenshop/api/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "orderItems"
)

// OrderRepository persists order headers and their item snapshots. Items are
// separate documents referencing the order, created in the same transaction as
// the header and immutable afterwards.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	items    *pfirestore.BaseRepository[orderItemDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		items:    pfirestore.NewBaseRepository[orderItemDocument](provider, orderItemsCollection),
	}, nil
}

// Insert creates the order document, failing on duplicate identifiers.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order insert: id is required")
	}
	return r.orders.Create(ctx, orderID, newOrderDocument(order))
}

// InsertItems creates the immutable item snapshot documents for an order.
func (r *OrderRepository) InsertItems(ctx context.Context, items []domain.OrderItem) error {
	if r == nil || r.items == nil {
		return errors.New("order repository not initialised")
	}
	if len(items) == 0 {
		return errors.New("order items insert: at least one item is required")
	}
	for _, item := range items {
		itemID := strings.TrimSpace(item.ID)
		if itemID == "" {
			return errors.New("order items insert: item id is required")
		}
		if strings.TrimSpace(item.OrderID) == "" {
			return errors.New("order items insert: order id is required")
		}
		if err := r.items.Create(ctx, itemID, newOrderItemDocument(item)); err != nil {
			return err
		}
	}
	return nil
}

// ListItems returns the item snapshots belonging to an order.
func (r *OrderRepository) ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order items list: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.items.list", err)
	}

	iter := client.Collection(orderItemsCollection).
		Where("orderRef", "==", orderID).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.items.list", err)
		}
		var doc orderItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snap.Ref.ID, err)
		}
		item, err := doc.toDomain(snap.Ref.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order update: id is required")
	}
	return r.orders.Set(ctx, orderID, newOrderDocument(order))
}

// FindByID fetches the order header. Item snapshots are loaded via ListItems.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// List returns orders newest first, filtered and cursor paged.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userRef", "==", userID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.OrderID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		order, err := doc.toDomain(snap.Ref.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{OrderID: last.ID, CreatedAt: last.CreatedAt.UTC()})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	UserRef     string    `firestore:"userRef"`
	Status      string    `firestore:"status"`
	Subtotal    string    `firestore:"subtotal"`
	Tax         string    `firestore:"tax"`
	Discount    string    `firestore:"discount"`
	ShippingFee string    `firestore:"shippingFee"`
	Total       string    `firestore:"total"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type orderItemDocument struct {
	OrderRef    string `firestore:"orderRef"`
	ProductRef  string `firestore:"productRef"`
	ProductName string `firestore:"productName"`
	ImageURL    string `firestore:"imageUrl,omitempty"`
	UnitPrice   string `firestore:"unitPrice"`
	Quantity    int    `firestore:"qty"`
	Subtotal    string `firestore:"subtotal"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		UserRef:     strings.TrimSpace(order.UserID),
		Status:      string(order.Status),
		Subtotal:    order.Subtotal.String(),
		Tax:         order.Tax.String(),
		Discount:    order.Discount.String(),
		ShippingFee: order.ShippingFee.String(),
		Total:       order.Total.String(),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		OrderRef:    strings.TrimSpace(item.OrderID),
		ProductRef:  strings.TrimSpace(item.ProductID),
		ProductName: strings.TrimSpace(item.ProductName),
		ImageURL:    strings.TrimSpace(item.ImageURL),
		UnitPrice:   item.UnitPrice.String(),
		Quantity:    item.Quantity,
		Subtotal:    item.Subtotal.String(),
	}
}

func (d orderItemDocument) toDomain(id string) (domain.OrderItem, error) {
	unitPrice, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("decode order item %s: invalid unit price: %w", id, err)
	}
	subtotal, err := decimal.NewFromString(d.Subtotal)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("decode order item %s: invalid subtotal: %w", id, err)
	}
	return domain.OrderItem{
		ID:          id,
		OrderID:     d.OrderRef,
		ProductID:   d.ProductRef,
		ProductName: d.ProductName,
		ImageURL:    d.ImageURL,
		UnitPrice:   unitPrice,
		Quantity:    d.Quantity,
		Subtotal:    subtotal,
	}, nil
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	status, ok := domain.ParseOrderStatus(d.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("decode order %s: unknown status %q", id, d.Status)
	}

	amounts, err := parseAmounts(id, map[string]string{
		"subtotal":    d.Subtotal,
		"tax":         d.Tax,
		"discount":    d.Discount,
		"shippingFee": d.ShippingFee,
		"total":       d.Total,
	})
	if err != nil {
		return domain.Order{}, err
	}

	return domain.Order{
		ID:          id,
		UserID:      d.UserRef,
		Status:      status,
		Subtotal:    amounts["subtotal"],
		Tax:         amounts["tax"],
		Discount:    amounts["discount"],
		ShippingFee: amounts["shippingFee"],
		Total:       amounts["total"],
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func parseAmounts(orderID string, raw map[string]string) (map[string]decimal.Decimal, error) {
	parsed := make(map[string]decimal.Decimal, len(raw))
	for field, value := range raw {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("decode order %s: invalid %s %q: %w", orderID, field, value, err)
		}
		parsed[field] = amount
	}
	return parsed, nil
}

type orderPageToken struct {
	OrderID   string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}
