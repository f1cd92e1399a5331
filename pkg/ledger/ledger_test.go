package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MockStore is a simple in-memory implementation of the Storage interface
// for testing.
type MockStore struct {
	customers    map[uuid.UUID]*models.Customer
	loans        map[uuid.UUID]*models.Loan
	installments []*models.Installment
	users        map[string]*models.User

	failWrites bool // force transactional writes to fail
}

func NewMockStore() *MockStore {
	return &MockStore{
		customers:    make(map[uuid.UUID]*models.Customer),
		loans:        make(map[uuid.UUID]*models.Loan),
		installments: []*models.Installment{},
		users:        make(map[string]*models.User),
	}
}

func (m *MockStore) CreateCustomer(c *models.Customer) error {
	m.customers[c.ID] = c
	return nil
}

func (m *MockStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Copy so the ledger's mutations only land via CreateLoanWithSchedule.
	clone := *c
	return &clone, nil
}

func (m *MockStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *l
	return &clone, nil
}

func (m *MockStore) ListLoans(customerID uuid.UUID, numberOfInstallments *int, isPaid *bool) ([]*models.Loan, error) {
	var loans []*models.Loan
	for _, l := range m.loans {
		if l.CustomerID != customerID {
			continue
		}
		if numberOfInstallments != nil && l.NumberOfInstallments != *numberOfInstallments {
			continue
		}
		if isPaid != nil && l.IsPaid != *isPaid {
			continue
		}
		loans = append(loans, l)
	}
	return loans, nil
}

func (m *MockStore) ListInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	var out []*models.Installment
	for _, i := range m.installments {
		if i.LoanID == loanID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *MockStore) ListUnpaidInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	var out []*models.Installment
	for _, i := range m.installments {
		if i.LoanID == loanID && !i.IsPaid {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *MockStore) ListReminders(before time.Time) ([]*models.Reminder, error) {
	var out []*models.Reminder
	for _, i := range m.installments {
		if i.IsPaid || !i.DueDate.Before(before) {
			continue
		}
		loan := m.loans[i.LoanID]
		customer := m.customers[loan.CustomerID]
		out = append(out, &models.Reminder{
			Email:   customer.Email,
			Name:    customer.Name,
			DueDate: i.DueDate,
			Amount:  i.Amount,
		})
	}
	return out, nil
}

func (m *MockStore) CreateLoanWithSchedule(loan *models.Loan, schedule []*models.Installment, customer *models.Customer) error {
	if m.failWrites {
		return fmt.Errorf("forced write failure")
	}
	m.loans[loan.ID] = loan
	m.installments = append(m.installments, schedule...)
	m.customers[customer.ID] = customer
	return nil
}

func (m *MockStore) ApplySettlement(loan *models.Loan, installments []*models.Installment) error {
	if m.failWrites {
		return fmt.Errorf("forced write failure")
	}
	m.loans[loan.ID] = loan
	for _, updated := range installments {
		for idx, existing := range m.installments {
			if existing.ID == updated.ID {
				m.installments[idx] = updated
			}
		}
	}
	return nil
}

func (m *MockStore) CreateUser(u *models.User) error {
	m.users[u.Username] = u
	return nil
}

func (m *MockStore) GetUserByUsername(username string) (*models.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *MockStore) Close() error {
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestLedger(s store.Storage) *Ledger {
	return NewLedger(s, testLogger())
}

func seedCustomer(m *MockStore, creditLimit, usedLimit float64) *models.Customer {
	c := &models.Customer{
		ID:              uuid.New(),
		Name:            "Ada",
		Surname:         "Lovelace",
		Email:           "ada@example.com",
		CreditLimit:     decimal.NewFromFloat(creditLimit),
		UsedCreditLimit: decimal.NewFromFloat(usedLimit),
	}
	m.customers[c.ID] = c
	return c
}
