package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		email TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		used_credit_limit TEXT NOT NULL DEFAULT '0'
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		loan_amount TEXT NOT NULL,
		number_of_installments INTEGER NOT NULL,
		create_date DATETIME NOT NULL,
		is_paid INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		due_date DATETIME NOT NULL,
		payment_date DATETIME,
		is_paid INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		customer_id TEXT,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateCustomer inserts a new customer into the database.
func (s *SQLiteStore) CreateCustomer(customer *models.Customer) error {
	_, err := s.db.Exec(
		`INSERT INTO customers (id, name, surname, email, credit_limit, used_credit_limit)
		VALUES (?, ?, ?, ?, ?, ?)`,
		customer.ID.String(), customer.Name, customer.Surname, customer.Email,
		customer.CreditLimit, customer.UsedCreditLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *SQLiteStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	var idStr string

	row := s.db.QueryRow(`SELECT id, name, surname, email, credit_limit, used_credit_limit FROM customers WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &customer.Name, &customer.Surname, &customer.Email, &customer.CreditLimit, &customer.UsedCreditLimit)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	customer.ID = uuid.MustParse(idStr)
	return &customer, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	var idStr, customerIDStr string

	row := s.db.QueryRow(`SELECT id, customer_id, loan_amount, number_of_installments, create_date, is_paid FROM loans WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &customerIDStr, &loan.LoanAmount, &loan.NumberOfInstallments, &loan.CreateDate, &loan.IsPaid)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	loan.ID = uuid.MustParse(idStr)
	loan.CustomerID = uuid.MustParse(customerIDStr)
	return &loan, nil
}

// ListLoans retrieves a customer's loans, optionally filtered by
// installment count and paid state.
func (s *SQLiteStore) ListLoans(customerID uuid.UUID, numberOfInstallments *int, isPaid *bool) ([]*models.Loan, error) {
	query := `SELECT id, customer_id, loan_amount, number_of_installments, create_date, is_paid FROM loans WHERE customer_id = ?`
	args := []interface{}{customerID.String()}
	if numberOfInstallments != nil {
		query += ` AND number_of_installments = ?`
		args = append(args, *numberOfInstallments)
	}
	if isPaid != nil {
		query += ` AND is_paid = ?`
		args = append(args, *isPaid)
	}
	query += ` ORDER BY create_date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		var loan models.Loan
		var idStr, customerIDStr string
		if err := rows.Scan(&idStr, &customerIDStr, &loan.LoanAmount, &loan.NumberOfInstallments, &loan.CreateDate, &loan.IsPaid); err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loan.ID = uuid.MustParse(idStr)
		loan.CustomerID = uuid.MustParse(customerIDStr)
		loans = append(loans, &loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// ListInstallments retrieves all installments for a loan ordered by due date.
func (s *SQLiteStore) ListInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, paid_amount, due_date, payment_date, is_paid FROM installments WHERE loan_id = ? ORDER BY due_date ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// ListUnpaidInstallments retrieves the unpaid installments for a loan
// ordered by due date.
func (s *SQLiteStore) ListUnpaidInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, paid_amount, due_date, payment_date, is_paid FROM installments WHERE loan_id = ? AND is_paid = 0 ORDER BY due_date ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid installments: %w", err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

func scanInstallments(rows *sql.Rows) ([]*models.Installment, error) {
	var installments []*models.Installment
	for rows.Next() {
		var installment models.Installment
		var idStr, loanIDStr string
		var paymentDate sql.NullTime
		if err := rows.Scan(&idStr, &loanIDStr, &installment.Amount, &installment.PaidAmount, &installment.DueDate, &paymentDate, &installment.IsPaid); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installment.ID = uuid.MustParse(idStr)
		installment.LoanID = uuid.MustParse(loanIDStr)
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
func (s *SQLiteStore) ListReminders(before time.Time) ([]*models.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT c.email, c.name, i.due_date, i.amount
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		JOIN customers c ON c.id = l.customer_id
		WHERE i.is_paid = 0 AND i.due_date < ?
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
func (s *SQLiteStore) CreateLoanWithSchedule(loan *models.Loan, schedule []*models.Installment, customer *models.Customer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, customer_id, loan_amount, number_of_installments, create_date, is_paid)
		VALUES (?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID.String(), loan.LoanAmount, loan.NumberOfInstallments, loan.CreateDate, loan.IsPaid,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	for _, installment := range schedule {
		_, err = tx.Exec(
			`INSERT INTO installments (id, loan_id, amount, paid_amount, due_date, payment_date, is_paid)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			installment.ID.String(), installment.LoanID.String(), installment.Amount, installment.PaidAmount,
			installment.DueDate, installment.PaymentDate, installment.IsPaid,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment: %w", err)
		}
	}

	result, err := tx.Exec(
		`UPDATE customers SET used_credit_limit = ? WHERE id = ?`,
		customer.UsedCreditLimit, customer.ID.String(),
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
func (s *SQLiteStore) ApplySettlement(loan *models.Loan, installments []*models.Installment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, installment := range installments {
		_, err = tx.Exec(
			`UPDATE installments SET paid_amount = ?, payment_date = ?, is_paid = ? WHERE id = ?`,
			installment.PaidAmount, installment.PaymentDate, installment.IsPaid, installment.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update installment: %w", err)
		}
	}

	result, err := tx.Exec(`UPDATE loans SET is_paid = ? WHERE id = ?`, loan.IsPaid, loan.ID.String())
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
func (s *SQLiteStore) CreateUser(user *models.User) error {
	var customerID interface{}
	if user.CustomerID != nil {
		customerID = user.CustomerID.String()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, role, customer_id) VALUES (?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.PasswordHash, user.Role, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves an API user by username.
func (s *SQLiteStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	var idStr string
	var customerIDStr sql.NullString

	row := s.db.QueryRow(`SELECT id, username, password_hash, role, customer_id FROM users WHERE username = ?`, username)
	err := row.Scan(&idStr, &user.Username, &user.PasswordHash, &user.Role, &customerIDStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.ID = uuid.MustParse(idStr)
	if customerIDStr.Valid {
		customerID := uuid.MustParse(customerIDStr.String)
		user.CustomerID = &customerID
	}
	return &user, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
