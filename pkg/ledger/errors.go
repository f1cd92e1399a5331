package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Business-rule failures. All are terminal: the caller gets the decision,
// nothing is retried and no state is mutated.
var (
	ErrCustomerNotFound = errors.New("customer not found")

	ErrLoanNotFound = errors.New("loan not found")

	ErrLoanAlreadyPaid = errors.New("loan is already fully paid")

	// ErrPayableHorizonExceeded means unpaid installments exist but every
	// one of them falls beyond the 3-calendar-month payable window.
	ErrPayableHorizonExceeded = errors.New("loan installments more than 3 calendar months cannot be paid")
)

// CreditLimitError reports an origination rejected because the projected
// usage would exceed the customer's credit limit.
type CreditLimitError struct {
	CreditLimit    decimal.Decimal
	AvailableLimit decimal.Decimal
	ProjectedUsage decimal.Decimal
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("customer exceeds credit limit. Current limit: %s, Available limit: %s, Total limit usage: %s",
		e.CreditLimit.StringFixed(2), e.AvailableLimit.StringFixed(2), e.ProjectedUsage.StringFixed(2))
}
