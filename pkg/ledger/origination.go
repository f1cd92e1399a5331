package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// CreateLoan originates a loan against the customer's credit limit.
//
// The total repayable amount is principal*(1+interestRate) rounded half-up
// to two decimals. If adding it to the customer's used limit would exceed
// the credit limit, the request is rejected with a CreditLimitError and
// nothing is persisted. Otherwise the loan, its installment schedule and
// the updated customer limit are stored in a single transaction.
//
// Each installment is rounded to two decimals independently, so the
// schedule total may drift from the loan amount by up to n-1 cents. The
// remainder is deliberately not redistributed.
func (l *Ledger) CreateLoan(customerID uuid.UUID, principal, interestRate decimal.Decimal, installments int) (*models.Loan, error) {
	customer, err := l.storage.GetCustomer(customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	totalLoanAmount := principal.Mul(interestRate.Add(one)).Round(2)
	totalLimitUsage := customer.UsedCreditLimit.Add(totalLoanAmount).Round(2)
	availableLimit := customer.CreditLimit.Sub(customer.UsedCreditLimit).Round(2)
	if totalLimitUsage.GreaterThan(customer.CreditLimit) {
		l.log.Errorf("Customer exceeds credit limit. Current limit: %s, Available limit: %s, Total limit usage: %s",
			customer.CreditLimit.StringFixed(2), availableLimit.StringFixed(2), totalLimitUsage.StringFixed(2))
		return nil, &CreditLimitError{
			CreditLimit:    customer.CreditLimit,
			AvailableLimit: availableLimit,
			ProjectedUsage: totalLimitUsage,
		}
	}

	today := l.today()
	loan := &models.Loan{
		ID:                   uuid.New(),
		CustomerID:           customer.ID,
		LoanAmount:           totalLoanAmount,
		NumberOfInstallments: installments,
		CreateDate:           today,
	}

	installmentAmount := totalLoanAmount.DivRound(decimal.NewFromInt(int64(installments)), 2)
	schedule := make([]*models.Installment, 0, installments)
	for i := 1; i <= installments; i++ {
		schedule = append(schedule, &models.Installment{
			ID:         uuid.New(),
			LoanID:     loan.ID,
			Amount:     installmentAmount,
			PaidAmount: decimal.Zero,
			DueDate:    firstOfMonth(today, i),
		})
	}

	customer.UsedCreditLimit = totalLimitUsage

	if err := l.storage.CreateLoanWithSchedule(loan, schedule, customer); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.Infof("Loan %s created for customer %s: amount %s over %d installments",
		loan.ID, customer.ID, totalLoanAmount.StringFixed(2), installments)
	return loan, nil
}

// firstOfMonth returns the first calendar day of the month that lies
// monthsAhead full months after t.
func firstOfMonth(t time.Time, monthsAhead int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(monthsAhead), 1, 0, 0, 0, 0, time.UTC)
}
