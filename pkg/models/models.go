package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer holds a revolving credit limit. UsedCreditLimit only ever grows:
// repaying a loan does not free credit in this system.
type Customer struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Surname         string          `json:"surname"`
	Email           string          `json:"email"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	UsedCreditLimit decimal.Decimal `json:"used_credit_limit"`
}

// Loan is the total repayable amount (principal plus interest) split into an
// installment schedule. IsPaid flips to true exactly once, when the last
// installment is settled.
type Loan struct {
	ID                   uuid.UUID       `json:"id"`
	CustomerID           uuid.UUID       `json:"customer_id"`
	LoanAmount           decimal.Decimal `json:"loan_amount"`
	NumberOfInstallments int             `json:"number_of_installments"`
	CreateDate           time.Time       `json:"create_date"`
	IsPaid               bool            `json:"is_paid"`
}

// Installment is one scheduled due amount of a loan. PaidAmount and
// PaymentDate are set when the installment is settled and may differ from
// Amount because of the time-based discount or penalty.
type Installment struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	DueDate     time.Time       `json:"due_date"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	IsPaid      bool            `json:"is_paid"`
}

// PaymentResult is the outcome of a single settlement run.
type PaymentResult struct {
	InstallmentsPaid int             `json:"installments_paid"`
	TotalAmountSpent decimal.Decimal `json:"total_amount_spent"`
	LoanFullyPaid    bool            `json:"loan_fully_paid"`
}

// Roles an API user can hold.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// User is an API login. A CUSTOMER user is bound to exactly one customer
// record; an ADMIN user may act for any customer.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CustomerID   *uuid.UUID `json:"customer_id,omitempty"`
}

// Reminder is one upcoming or overdue installment flattened with the
// customer contact details, as selected for the notification job.
type Reminder struct {
	Email   string
	Name    string
	DueDate time.Time
	Amount  decimal.Decimal
	Overdue bool
}
