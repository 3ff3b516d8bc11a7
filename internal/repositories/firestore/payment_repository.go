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

const orderPaymentsCollection = "orderPayments"

// PaymentRepository stores payment records keyed by order. Keying by order
// makes the one-payment-per-order rule a document uniqueness constraint.
type PaymentRepository struct {
	payments *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		payments: pfirestore.NewBaseRepository[paymentDocument](provider, orderPaymentsCollection),
	}, nil
}

// Insert creates the payment. A second insert for the same order fails with a
// conflict category.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.payments == nil {
		return errors.New("payment repository not initialised")
	}
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" {
		return errors.New("payment insert: order id is required")
	}
	return r.payments.Create(ctx, orderID, newPaymentDocument(payment))
}

// Update overwrites the payment record.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.payments == nil {
		return errors.New("payment repository not initialised")
	}
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" {
		return errors.New("payment update: order id is required")
	}
	return r.payments.Set(ctx, orderID, newPaymentDocument(payment))
}

// FindByOrder fetches the payment attached to the order.
func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if r == nil || r.payments == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Payment{}, errors.New("payment find: order id is required")
	}

	doc, err := r.payments.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// Document mapping ----------------------------------------------------------

type paymentDocument struct {
	PaymentID     string    `firestore:"paymentId"`
	Amount        string    `firestore:"amount"`
	Provider      string    `firestore:"provider"`
	TransactionID string    `firestore:"transactionId,omitempty"`
	Status        string    `firestore:"status"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		PaymentID:     strings.TrimSpace(payment.ID),
		Amount:        payment.Amount.String(),
		Provider:      strings.TrimSpace(payment.Provider),
		TransactionID: strings.TrimSpace(payment.TransactionID),
		Status:        string(payment.Status),
		CreatedAt:     payment.CreatedAt.UTC(),
		UpdatedAt:     payment.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(orderID string) (domain.Payment, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("decode payment for order %s: invalid amount %q: %w", orderID, d.Amount, err)
	}
	status, ok := domain.ParsePaymentStatus(d.Status)
	if !ok {
		return domain.Payment{}, fmt.Errorf("decode payment for order %s: unknown status %q", orderID, d.Status)
	}
	return domain.Payment{
		ID:            d.PaymentID,
		OrderID:       orderID,
		Amount:        amount,
		Provider:      d.Provider,
		TransactionID: d.TransactionID,
		Status:        status,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}
