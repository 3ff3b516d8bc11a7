package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/lumenshop/api/internal/domain"
	pfirestore "github.com/lumenshop/api/internal/platform/firestore"
)

const productsCollection = "products"

// ProductRepository serves catalog reads from the products collection.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// FindByIDs fetches the requested products in one batched read, keyed by ID.
// Missing products are simply absent from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("product repository not initialised")
	}

	ids := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	docs, err := r.products.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		product, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		result[doc.ID] = product
	}
	return result, nil
}

// Upsert writes the product document.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product upsert: id is required")
	}
	return r.products.Set(ctx, productID, newProductDocument(product))
}

// Document mapping ----------------------------------------------------------

type productDocument struct {
	Name      string    `firestore:"name"`
	UnitPrice string    `firestore:"unitPrice"`
	Stock     int       `firestore:"stock"`
	Active    bool      `firestore:"active"`
	ImageURL  string    `firestore:"imageUrl,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:      strings.TrimSpace(product.Name),
		UnitPrice: product.UnitPrice.String(),
		Stock:     product.Stock,
		Active:    product.Active,
		ImageURL:  strings.TrimSpace(product.ImageURL),
		UpdatedAt: product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) (domain.Product, error) {
	unitPrice, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: invalid unit price %q: %w", id, d.UnitPrice, err)
	}
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		UnitPrice: unitPrice,
		Stock:     d.Stock,
		Active:    d.Active,
		ImageURL:  d.ImageURL,
		UpdatedAt: d.UpdatedAt,
	}, nil
}
