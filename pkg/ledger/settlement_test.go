package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/shopspring/decimal"
)

var settlementToday = time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

func newSettlementLedger(mock *MockStore) *Ledger {
	l := newTestLedger(mock)
	l.now = func() time.Time { return settlementToday }
	return l
}

func seedLoan(mock *MockStore, customerID uuid.UUID, amount float64, installments int) *models.Loan {
	loan := &models.Loan{
		ID:                   uuid.New(),
		CustomerID:           customerID,
		LoanAmount:           decimal.NewFromFloat(amount),
		NumberOfInstallments: installments,
		CreateDate:           settlementToday,
	}
	mock.loans[loan.ID] = loan
	return loan
}

func seedInstallment(mock *MockStore, loanID uuid.UUID, amount float64, due time.Time) *models.Installment {
	installment := &models.Installment{
		ID:         uuid.New(),
		LoanID:     loanID,
		Amount:     decimal.NewFromFloat(amount),
		PaidAmount: decimal.Zero,
		DueDate:    due,
	}
	mock.installments = append(mock.installments, installment)
	return installment
}

func TestPayLoan_SettlesInDueDateOrder(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 400, 6)

	// One due today (no adjustment), one due in 17 days (discounted:
	// 200 - 200*0.001*17 = 196.60).
	seedInstallment(mock, loan.ID, 200, settlementToday)
	seedInstallment(mock, loan.ID, 200, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))

	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(400.00))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}

	if result.InstallmentsPaid != 2 {
		t.Errorf("Expected 2 installments paid, got %d", result.InstallmentsPaid)
	}
	expectedSpent := decimal.NewFromFloat(396.60)
	if !result.TotalAmountSpent.Equal(expectedSpent) {
		t.Errorf("Expected total spent %s, got %s", expectedSpent, result.TotalAmountSpent)
	}
	if !result.LoanFullyPaid {
		t.Error("Expected loan to be fully paid")
	}
	if !mock.loans[loan.ID].IsPaid {
		t.Error("Expected loan record to be marked paid")
	}
	for _, installment := range mock.installments {
		if !installment.IsPaid {
			t.Error("Expected every installment to be marked paid")
		}
		if installment.PaymentDate == nil || !installment.PaymentDate.Equal(settlementToday) {
			t.Error("Expected payment date to be set to today")
		}
	}
}

func TestPayLoan_EarlyPaymentDiscount(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 300, 6)

	// Due in 10 days: 300 - 300*0.001*10 = 297.00.
	seedInstallment(mock, loan.ID, 300, time.Date(2026, time.March, 25, 0, 0, 0, 0, time.UTC))

	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(300.00))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}
	if result.InstallmentsPaid != 1 {
		t.Errorf("Expected 1 installment paid, got %d", result.InstallmentsPaid)
	}
	if !result.TotalAmountSpent.Equal(decimal.NewFromFloat(297.00)) {
		t.Errorf("Expected total spent 297.00, got %s", result.TotalAmountSpent)
	}
	if !mock.installments[0].PaidAmount.Equal(decimal.NewFromFloat(297.00)) {
		t.Errorf("Expected paid amount 297.00, got %s", mock.installments[0].PaidAmount)
	}
}

func TestPayLoan_LatePaymentPenalty(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 300, 6)

	// Overdue by 10 days: 300 + 300*0.001*10 = 303.00.
	seedInstallment(mock, loan.ID, 300, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))

	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(310.00))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}
	if !result.TotalAmountSpent.Equal(decimal.NewFromFloat(303.00)) {
		t.Errorf("Expected total spent 303.00, got %s", result.TotalAmountSpent)
	}
	if !result.LoanFullyPaid {
		t.Error("Expected loan to be fully paid")
	}
}

func TestPayLoan_NominalGateStopsIteration(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 500, 6)

	seedInstallment(mock, loan.ID, 200, settlementToday)
	second := seedInstallment(mock, loan.ID, 300, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))

	// 250 covers the first installment; the remaining 50 is below the
	// second's nominal amount, so iteration stops there.
	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(250.00))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}
	if result.InstallmentsPaid != 1 {
		t.Errorf("Expected 1 installment paid, got %d", result.InstallmentsPaid)
	}
	if !result.TotalAmountSpent.Equal(decimal.NewFromFloat(200.00)) {
		t.Errorf("Expected total spent 200.00, got %s", result.TotalAmountSpent)
	}
	if result.LoanFullyPaid {
		t.Error("Expected loan not to be fully paid")
	}
	if second.IsPaid {
		t.Error("Expected second installment to stay unpaid")
	}
}

func TestPayLoan_SkipsUnaffordableAdjustedAndContinues(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 400, 6)

	// First is 28 days overdue: adjusted 200 + 200*0.001*28 = 205.60,
	// above the 204.00 payment. Its nominal 200 does not stop the loop,
	// so the second installment (due today, adjusted 200) still settles.
	overdue := seedInstallment(mock, loan.ID, 200, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC))
	seedInstallment(mock, loan.ID, 200, settlementToday)

	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(204.00))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}
	if result.InstallmentsPaid != 1 {
		t.Errorf("Expected 1 installment paid, got %d", result.InstallmentsPaid)
	}
	if !result.TotalAmountSpent.Equal(decimal.NewFromFloat(200.00)) {
		t.Errorf("Expected total spent 200.00, got %s", result.TotalAmountSpent)
	}
	if overdue.IsPaid {
		t.Error("Expected the overdue installment to stay unpaid")
	}
	if result.LoanFullyPaid {
		t.Error("Expected loan not to be fully paid")
	}
}

func TestPayLoan_AlreadyPaid(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 400, 6)
	loan.IsPaid = true

	_, err := l.PayLoan(loan.ID, decimal.NewFromFloat(100.00))
	if !errors.Is(err, ErrLoanAlreadyPaid) {
		t.Fatalf("Expected ErrLoanAlreadyPaid, got %v", err)
	}
}

func TestPayLoan_HorizonExceeded(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 200, 6)

	// Due four months out: beyond the 3-month payable horizon.
	installment := seedInstallment(mock, loan.ID, 200, time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC))

	_, err := l.PayLoan(loan.ID, decimal.NewFromFloat(200.00))
	if !errors.Is(err, ErrPayableHorizonExceeded) {
		t.Fatalf("Expected ErrPayableHorizonExceeded, got %v", err)
	}
	if installment.IsPaid {
		t.Error("Expected installment to stay unpaid")
	}
}

func TestPayLoan_HorizonBoundaryIsExclusive(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 200, 6)

	// Due exactly today+3 months: "strictly before" makes it ineligible.
	seedInstallment(mock, loan.ID, 200, time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC))

	_, err := l.PayLoan(loan.ID, decimal.NewFromFloat(200.00))
	if !errors.Is(err, ErrPayableHorizonExceeded) {
		t.Fatalf("Expected ErrPayableHorizonExceeded, got %v", err)
	}
}

func TestPayLoan_InstallmentBeyondHorizonBlocksFullPayoff(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 400, 6)

	seedInstallment(mock, loan.ID, 200, settlementToday)
	far := seedInstallment(mock, loan.ID, 200, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))

	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(1000.00))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}
	if result.InstallmentsPaid != 1 {
		t.Errorf("Expected 1 installment paid, got %d", result.InstallmentsPaid)
	}
	if result.LoanFullyPaid {
		t.Error("Expected loan not to be fully paid while an installment is beyond the horizon")
	}
	if mock.loans[loan.ID].IsPaid {
		t.Error("Expected loan record to stay open")
	}
	if far.IsPaid {
		t.Error("Expected far installment to stay unpaid")
	}
}

func TestPayLoan_LoanNotFound(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)

	_, err := l.PayLoan(uuid.New(), decimal.NewFromFloat(100.00))
	if !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestPayLoan_RoundsAmountBeforeProcessing(t *testing.T) {
	mock := NewMockStore()
	l := newSettlementLedger(mock)
	customer := seedCustomer(mock, 10000, 0)
	loan := seedLoan(mock, customer.ID, 200, 6)
	seedInstallment(mock, loan.ID, 200, settlementToday)

	// 199.996 rounds half-up to 200.00 before allocation.
	result, err := l.PayLoan(loan.ID, decimal.NewFromFloat(199.996))
	if err != nil {
		t.Fatalf("Failed to pay loan: %v", err)
	}
	if result.InstallmentsPaid != 1 {
		t.Errorf("Expected 1 installment paid, got %d", result.InstallmentsPaid)
	}
}

func TestTimeAdjustedAmount(t *testing.T) {
	due := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		nominal  decimal.Decimal
		payment  time.Time
		expected decimal.Decimal
	}{
		{"on due date", decimal.NewFromFloat(200.00), due, decimal.NewFromFloat(200.00)},
		{"one day early", decimal.NewFromFloat(200.00), due.AddDate(0, 0, -1), decimal.NewFromFloat(199.80)},
		{"one day late", decimal.NewFromFloat(200.00), due.AddDate(0, 0, 1), decimal.NewFromFloat(200.20)},
		{"thirty days early", decimal.NewFromFloat(150.00), due.AddDate(0, 0, -30), decimal.NewFromFloat(145.50)},
		{"rounds half up", decimal.NewFromFloat(33.33), due.AddDate(0, 0, 5), decimal.NewFromFloat(33.50)},
		{"non-positive nominal", decimal.Zero, due, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeAdjustedAmount(tt.nominal, due, tt.payment)
			if !got.Equal(tt.expected) {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
