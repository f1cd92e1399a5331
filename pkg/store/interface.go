package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence operations for customers, loans,
// installments and API users.
//
// CreateLoanWithSchedule and ApplySettlement are transactional composites:
// implementations must apply every write in the call or none of them, so a
// mid-sequence failure never leaves a loan without its schedule or a paid
// installment without its loan flag.
type Storage interface {
	CreateCustomer(customer *models.Customer) error
	GetCustomer(id uuid.UUID) (*models.Customer, error)

	GetLoan(id uuid.UUID) (*models.Loan, error)
	// ListLoans filters a customer's loans; nil filters act as wildcards.
	ListLoans(customerID uuid.UUID, numberOfInstallments *int, isPaid *bool) ([]*models.Loan, error)

	ListInstallments(loanID uuid.UUID) ([]*models.Installment, error)
	ListUnpaidInstallments(loanID uuid.UUID) ([]*models.Installment, error)
	// ListReminders returns the unpaid installments due strictly before the
	// cutoff, joined with customer contact details, oldest due date first.
	ListReminders(before time.Time) ([]*models.Reminder, error)

	// CreateLoanWithSchedule persists a new loan, its installment schedule
	// and the customer's updated used credit limit atomically.
	CreateLoanWithSchedule(loan *models.Loan, schedule []*models.Installment, customer *models.Customer) error
	// ApplySettlement persists the post-settlement state of the loan and the
	// considered installments atomically.
	ApplySettlement(loan *models.Loan, installments []*models.Installment) error

	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)

	Close() error
}
