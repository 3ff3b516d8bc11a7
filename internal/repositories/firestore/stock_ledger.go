package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/lumenshop/api/internal/platform/firestore"
	"github.com/lumenshop/api/internal/repositories"
)

// StockLedger performs conditional stock adjustments against the products
// collection. All adjustments in a request succeed or fail together.
type StockLedger struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewStockLedger constructs a Firestore-backed stock ledger.
func NewStockLedger(provider *pfirestore.Provider) (*StockLedger, error) {
	if provider == nil {
		return nil, errors.New("stock ledger requires firestore provider")
	}
	return &StockLedger{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// Reserve decrements stock for every line after verifying availability. The
// availability check and decrement happen in the same transaction, so two
// concurrent reservations can never both succeed on the last unit.
func (l *StockLedger) Reserve(ctx context.Context, req repositories.StockAdjustment) error {
	return l.adjust(ctx, "stock.reserve", req, func(productID string, stock, quantity int) (int, error) {
		if stock < quantity {
			return 0, repositories.NewStockError(
				repositories.StockErrorInsufficientStock,
				productID,
				fmt.Sprintf("insufficient stock for product %s: have %d, need %d", productID, stock, quantity),
				nil,
			)
		}
		return stock - quantity, nil
	})
}

// Release returns previously reserved quantities back to stock.
func (l *StockLedger) Release(ctx context.Context, req repositories.StockAdjustment) error {
	return l.adjust(ctx, "stock.release", req, func(_ string, stock, quantity int) (int, error) {
		return stock + quantity, nil
	})
}

// adjust runs the read-check-write cycle for all lines. Reads complete before
// any write is issued; Firestore transactions forbid reads after writes.
func (l *StockLedger) adjust(ctx context.Context, op string, req repositories.StockAdjustment, apply func(productID string, stock, quantity int) (int, error)) error {
	if l == nil || l.provider == nil {
		return errors.New("stock ledger not initialised")
	}
	if len(req.Lines) == 0 {
		return errors.New("stock adjustment: at least one line is required")
	}

	lines, err := normaliseLines(req.Lines)
	if err != nil {
		return err
	}

	now := req.Now.UTC()
	err = l.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]pendingWrite, 0, len(lines))

		for _, line := range lines {
			ref, err := l.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(
						repositories.StockErrorNotFound,
						line.ProductID,
						fmt.Sprintf("product %s has no stock record", line.ProductID),
						err,
					)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}

			updated, err := apply(line.ProductID, doc.Stock, line.Quantity)
			if err != nil {
				return err
			}
			doc.Stock = updated
			doc.UpdatedAt = now
			writes = append(writes, pendingWrite{ref: ref, doc: doc})
		}

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStockError(op, err)
	}
	return nil
}

func normaliseLines(lines []repositories.StockLine) ([]repositories.StockLine, error) {
	// Merge duplicate product lines so each document is read and written once
	// per transaction.
	merged := make([]repositories.StockLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, errors.New("stock adjustment: product id is required")
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewStockError(
				repositories.StockErrorUnknown,
				productID,
				fmt.Sprintf("stock adjustment: quantity for %s must be > 0", productID),
				nil,
			)
		}
		if i, ok := index[productID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, repositories.StockLine{ProductID: productID, Quantity: line.Quantity})
	}
	return merged, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
