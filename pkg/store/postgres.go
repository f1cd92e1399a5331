package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"

	_ "github.com/lib/pq"
)

// PostgresStore implements Storage on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and initializes the schema.
func NewPostgresStore(conn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		email TEXT NOT NULL,
		credit_limit NUMERIC(20,2) NOT NULL,
		used_credit_limit NUMERIC(20,2) NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS loans (
		id UUID PRIMARY KEY,
		customer_id UUID NOT NULL REFERENCES customers(id),
		loan_amount NUMERIC(20,2) NOT NULL,
		number_of_installments INTEGER NOT NULL,
		create_date TIMESTAMPTZ NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE IF NOT EXISTS installments (
		id UUID PRIMARY KEY,
		loan_id UUID NOT NULL REFERENCES loans(id),
		amount NUMERIC(20,2) NOT NULL,
		paid_amount NUMERIC(20,2) NOT NULL DEFAULT 0,
		due_date TIMESTAMPTZ NOT NULL,
		payment_date TIMESTAMPTZ,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		customer_id UUID REFERENCES customers(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateCustomer inserts a new customer.
func (s *PostgresStore) CreateCustomer(customer *models.Customer) error {
	_, err := s.db.Exec(
		`INSERT INTO customers (id, name, surname, email, credit_limit, used_credit_limit)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		customer.ID, customer.Name, customer.Surname, customer.Email,
		customer.CreditLimit, customer.UsedCreditLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *PostgresStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	row := s.db.QueryRow(`SELECT id, name, surname, email, credit_limit, used_credit_limit FROM customers WHERE id = $1`, id)
	err := row.Scan(&customer.ID, &customer.Name, &customer.Surname, &customer.Email, &customer.CreditLimit, &customer.UsedCreditLimit)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

// GetLoan retrieves a loan by its ID.
func (s *PostgresStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	row := s.db.QueryRow(`SELECT id, customer_id, loan_amount, number_of_installments, create_date, is_paid FROM loans WHERE id = $1`, id)
	err := row.Scan(&loan.ID, &loan.CustomerID, &loan.LoanAmount, &loan.NumberOfInstallments, &loan.CreateDate, &loan.IsPaid)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return &loan, nil
}

// ListLoans retrieves a customer's loans with optional filters; the NULL
// comparisons let absent filters act as wildcards in one statement.
func (s *PostgresStore) ListLoans(customerID uuid.UUID, numberOfInstallments *int, isPaid *bool) ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT id, customer_id, loan_amount, number_of_installments, create_date, is_paid
		FROM loans
		WHERE customer_id = $1
		  AND ($2::int IS NULL OR number_of_installments = $2)
		  AND ($3::boolean IS NULL OR is_paid = $3)
		ORDER BY create_date ASC`,
		customerID, numberOfInstallments, isPaid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		var loan models.Loan
		if err := rows.Scan(&loan.ID, &loan.CustomerID, &loan.LoanAmount, &loan.NumberOfInstallments, &loan.CreateDate, &loan.IsPaid); err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, &loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// ListInstallments retrieves all installments for a loan ordered by due date.
func (s *PostgresStore) ListInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	return s.queryInstallments(
		`SELECT id, loan_id, amount, paid_amount, due_date, payment_date, is_paid FROM installments WHERE loan_id = $1 ORDER BY due_date ASC`,
		loanID,
	)
}

// ListUnpaidInstallments retrieves the unpaid installments for a loan
// ordered by due date.
func (s *PostgresStore) ListUnpaidInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	return s.queryInstallments(
		`SELECT id, loan_id, amount, paid_amount, due_date, payment_date, is_paid FROM installments WHERE loan_id = $1 AND is_paid = FALSE ORDER BY due_date ASC`,
		loanID,
	)
}

func (s *PostgresStore) queryInstallments(query string, loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.db.Query(query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		var installment models.Installment
		var paymentDate sql.NullTime
		if err := rows.Scan(&installment.ID, &installment.LoanID, &installment.Amount, &installment.PaidAmount, &installment.DueDate, &paymentDate, &installment.IsPaid); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		if paymentDate.Valid {
			installment.PaymentDate = &paymentDate.Time
		}
		installments = append(installments, &installment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return installments, nil
}

// ListReminders joins unpaid installments due before the cutoff with the
// owning customer's contact details.
func (s *PostgresStore) ListReminders(before time.Time) ([]*models.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT c.email, c.name, i.due_date, i.amount
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		JOIN customers c ON c.id = l.customer_id
		WHERE i.is_paid = FALSE AND i.due_date < $1
		ORDER BY i.due_date ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		var r models.Reminder
		if err := rows.Scan(&r.Email, &r.Name, &r.DueDate, &r.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		reminders = append(reminders, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return reminders, nil
}

// CreateLoanWithSchedule stores a loan, its schedule and the customer's
// updated limit in a single transaction.
func (s *PostgresStore) CreateLoanWithSchedule(loan *models.Loan, schedule []*models.Installment, customer *models.Customer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, customer_id, loan_amount, number_of_installments, create_date, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		loan.ID, loan.CustomerID, loan.LoanAmount, loan.NumberOfInstallments, loan.CreateDate, loan.IsPaid,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	for _, installment := range schedule {
		_, err = tx.Exec(
			`INSERT INTO installments (id, loan_id, amount, paid_amount, due_date, payment_date, is_paid)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			installment.ID, installment.LoanID, installment.Amount, installment.PaidAmount,
			installment.DueDate, installment.PaymentDate, installment.IsPaid,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment: %w", err)
		}
	}

	result, err := tx.Exec(
		`UPDATE customers SET used_credit_limit = $1 WHERE id = $2`,
		customer.UsedCreditLimit, customer.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer limit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// ApplySettlement stores the post-settlement loan and installment state in
// a single transaction.
func (s *PostgresStore) ApplySettlement(loan *models.Loan, installments []*models.Installment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, installment := range installments {
		_, err = tx.Exec(
			`UPDATE installments SET paid_amount = $1, payment_date = $2, is_paid = $3 WHERE id = $4`,
			installment.PaidAmount, installment.PaymentDate, installment.IsPaid, installment.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update installment: %w", err)
		}
	}

	result, err := tx.Exec(`UPDATE loans SET is_paid = $1 WHERE id = $2`, loan.IsPaid, loan.ID)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// CreateUser inserts a new API user.
func (s *PostgresStore) CreateUser(user *models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, role, customer_id) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.PasswordHash, user.Role, user.CustomerID,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves an API user by username.
func (s *PostgresStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	var customerID sql.NullString

	row := s.db.QueryRow(`SELECT id, username, password_hash, role, customer_id FROM users WHERE username = $1`, username)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &customerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if customerID.Valid {
		id := uuid.MustParse(customerID.String)
		user.CustomerID = &id
	}
	return &user, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
