package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Loan terms accepted by the product.
var (
	ValidInstallmentCounts = []int{6, 9, 12, 24}

	MinInterestRate = decimal.NewFromFloat(0.1)
	MaxInterestRate = decimal.NewFromFloat(0.5)
)

// Ledger handles the business logic for loan origination and settlement.
type Ledger struct {
	storage store.Storage
	log     *logrus.Logger
	now     func() time.Time // overridable clock for date-sensitive logic
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log *logrus.Logger) *Ledger {
	return &Ledger{
		storage: s,
		log:     log,
		now:     time.Now,
	}
}

// today returns the current calendar date, truncated to midnight UTC, so
// day arithmetic is not skewed by the time of day.
func (l *Ledger) today() time.Time {
	n := l.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidInstallmentCount reports whether n is one of the accepted schedule
// lengths.
func ValidInstallmentCount(n int) bool {
	for _, v := range ValidInstallmentCounts {
		if v == n {
			return true
		}
	}
	return false
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// ListLoans lists a customer's loans. The installment-count and paid-state
// filters are optional; nil means no filtering on that field.
func (l *Ledger) ListLoans(customerID uuid.UUID, numberOfInstallments *int, isPaid *bool) ([]*models.Loan, error) {
	loans, err := l.storage.ListLoans(customerID, numberOfInstallments, isPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// ListInstallments lists every installment ever generated for a loan.
func (l *Ledger) ListInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	installments, err := l.storage.ListInstallments(loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	return installments, nil
}
