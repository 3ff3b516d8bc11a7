package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock ledger operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficientStock indicates requested quantity exceeds availability.
	StockErrorInsufficientStock StockErrorCode = "stock_insufficient"
	// StockErrorNotFound indicates the product does not have a stock record.
	StockErrorNotFound StockErrorCode = "stock_not_found"
)

// StockError wraps stock-specific failures with machine readable codes.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock ledger error.
func NewStockError(code StockErrorCode, productID, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:      code,
		ProductID: productID,
		Message:   message,
		Err:       err,
	}
}
