package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/shopspring/decimal"
)

// paymentTimingRate scales an installment by 0.1% per day between its due
// date and the payment date: a discount when paid early, a penalty when
// paid late.
var paymentTimingRate = decimal.NewFromFloat(0.001)

// payableHorizonMonths is how far ahead an unpaid installment may be due
// and still be settled.
const payableHorizonMonths = 3

// PayLoan settles as much of the loan as the given amount covers.
//
// Unpaid installments due within the payable horizon are taken earliest
// due date first. An installment is settled when the remaining amount
// covers its time-adjusted value; the loop stops early once the remaining
// amount drops below an installment's nominal value. The nominal gate and
// the adjusted comparison are deliberately separate: a later installment
// that became cheap through an early-payment discount is still skipped
// once funds fall under a nominal amount.
//
// When every installment of the loan ends up paid, the loan itself is
// marked paid. All state produced by one call is persisted atomically.
func (l *Ledger) PayLoan(loanID uuid.UUID, amount decimal.Decimal) (*models.PaymentResult, error) {
	amount = amount.Round(2)

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	if loan.IsPaid {
		return nil, ErrLoanAlreadyPaid
	}

	allUnpaid, err := l.storage.ListUnpaidInstallments(loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid installments: %w", err)
	}

	today := l.today()
	horizon := today.AddDate(0, payableHorizonMonths, 0)

	payable := make([]*models.Installment, 0, len(allUnpaid))
	for _, installment := range allUnpaid {
		if installment.DueDate.Before(horizon) {
			payable = append(payable, installment)
		}
	}
	sort.SliceStable(payable, func(i, j int) bool {
		return payable[i].DueDate.Before(payable[j].DueDate)
	})

	if len(allUnpaid) > 0 && len(payable) == 0 {
		return nil, ErrPayableHorizonExceeded
	}

	installmentsPaid := 0
	totalAmountSpent := decimal.Zero

	for _, installment := range payable {
		if amount.LessThan(installment.Amount) {
			l.log.Warnf("amount to be paid %s is below of loan installment amount: %s",
				amount.StringFixed(2), installment.Amount.StringFixed(2))
			break
		}

		adjusted := timeAdjustedAmount(installment.Amount, installment.DueDate, today)
		if amount.GreaterThanOrEqual(adjusted) {
			paymentDate := today
			installment.PaidAmount = adjusted
			installment.PaymentDate = &paymentDate
			installment.IsPaid = true

			amount = amount.Sub(adjusted)
			totalAmountSpent = totalAmountSpent.Add(adjusted)
			installmentsPaid++
		}
	}

	// Full payoff is judged against every unpaid installment the loan had,
	// not just the payable subset.
	loanFullyPaid := true
	for _, installment := range allUnpaid {
		if !installment.IsPaid {
			loanFullyPaid = false
			break
		}
	}
	if loanFullyPaid {
		loan.IsPaid = true
	}

	if err := l.storage.ApplySettlement(loan, payable); err != nil {
		return nil, fmt.Errorf("failed to store settlement: %w", err)
	}

	l.log.Infof("Loan %s settlement: %d installments paid, %s spent, fully paid: %t",
		loan.ID, installmentsPaid, totalAmountSpent.StringFixed(2), loanFullyPaid)

	return &models.PaymentResult{
		InstallmentsPaid: installmentsPaid,
		TotalAmountSpent: totalAmountSpent.Round(2),
		LoanFullyPaid:    loanFullyPaid,
	}, nil
}

// timeAdjustedAmount applies the per-day timing rate to an installment.
// Due dates in the future yield a discount, overdue ones a penalty. A due
// date equal to the payment date leaves the nominal amount untouched.
func timeAdjustedAmount(nominal decimal.Decimal, dueDate, paymentDate time.Time) decimal.Decimal {
	if nominal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	days := daysBetween(dueDate, paymentDate)
	if days == 0 {
		return nominal
	}
	delta := nominal.Mul(paymentTimingRate).Mul(decimal.NewFromInt(int64(days)))
	return nominal.Add(delta).Round(2)
}

// daysBetween returns the signed number of calendar days from a to b.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
