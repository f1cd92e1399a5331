package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lendkit/creditledger/pkg/auth"
	"github.com/lendkit/creditledger/pkg/ledger"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance and its collaborators.
type Server struct {
	ledger  *ledger.Ledger
	auth    *auth.Service
	storage store.Storage
	log     *logrus.Logger
}

func NewServer(s store.Storage, authSvc *auth.Service, log *logrus.Logger) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, log),
		auth:    authSvc,
		storage: s,
		log:     log,
	}
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Role != models.RoleAdmin {
		http.Error(w, "Insufficient permission", http.StatusForbidden)
		return
	}

	var req struct {
		Name        string          `json:"name"`
		Surname     string          `json:"surname"`
		Email       string          `json:"email"`
		CreditLimit decimal.Decimal `json:"credit_limit"`
		Username    string          `json:"username"`
		Password    string          `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Surname == "" {
		http.Error(w, "Name and surname are required", http.StatusBadRequest)
		return
	}
	if req.CreditLimit.IsNegative() {
		http.Error(w, "Credit limit must not be negative", http.StatusBadRequest)
		return
	}

	customer := &models.Customer{
		ID:              uuid.New(),
		Name:            req.Name,
		Surname:         req.Surname,
		Email:           req.Email,
		CreditLimit:     req.CreditLimit,
		UsedCreditLimit: decimal.Zero,
	}
	if err := s.storage.CreateCustomer(customer); err != nil {
		s.log.Errorf("Error creating customer: %v", err)
		http.Error(w, "Failed to create customer", http.StatusInternalServerError)
		return
	}

	// Optionally bind an API login to the new customer.
	if req.Username != "" {
		if _, err := s.auth.Register(req.Username, req.Password, models.RoleCustomer, &customer.ID); err != nil {
			s.log.Errorf("Error creating customer user: %v", err)
			http.Error(w, "Failed to create customer user", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(customer)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID   uuid.UUID       `json:"customer_id"`
		Amount       decimal.Decimal `json:"amount"`
		InterestRate decimal.Decimal `json:"interest_rate"`
		Installments int             `json:"installments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.authorizeCustomer(w, r, req.CustomerID) {
		return
	}

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "Loan amount must be positive", http.StatusBadRequest)
		return
	}
	if req.InterestRate.LessThan(ledger.MinInterestRate) || req.InterestRate.GreaterThan(ledger.MaxInterestRate) {
		http.Error(w, "Interest rate must be between 0.1 and 0.5", http.StatusBadRequest)
		return
	}
	if !ledger.ValidInstallmentCount(req.Installments) {
		http.Error(w, fmt.Sprintf("Number of installments must be one of %v", ledger.ValidInstallmentCounts), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(req.CustomerID, req.Amount, req.InterestRate, req.Installments)
	if err != nil {
		var limitErr *ledger.CreditLimitError
		switch {
		case errors.As(err, &limitErr):
			http.Error(w, "Customer Credit limit exceeded: "+limitErr.Error(), http.StatusBadRequest)
		case errors.Is(err, ledger.ErrCustomerNotFound):
			http.Error(w, "Customer not found", http.StatusNotFound)
		default:
			s.log.Errorf("Error creating loan: %v", err)
			http.Error(w, fmt.Sprintf("Failed to create loan: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	customerID, err := uuid.Parse(vars["customerId"])
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}

	if !s.authorizeCustomer(w, r, customerID) {
		return
	}

	var numberOfInstallments *int
	if v := r.URL.Query().Get("numberOfInstallments"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid numberOfInstallments", http.StatusBadRequest)
			return
		}
		numberOfInstallments = &n
	}
	var isPaid *bool
	if v := r.URL.Query().Get("isPaid"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid isPaid", http.StatusBadRequest)
			return
		}
		isPaid = &b
	}

	loans, err := s.ledger.ListLoans(customerID, numberOfInstallments, isPaid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loans)
}

func (s *Server) payLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID uuid.UUID       `json:"loan_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	result, err := s.ledger.PayLoan(req.LoanID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrLoanNotFound):
			http.Error(w, "Loan not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrLoanAlreadyPaid), errors.Is(err, ledger.ErrPayableHorizonExceeded):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.log.Errorf("Error paying loan: %v", err)
			http.Error(w, fmt.Sprintf("Failed to pay loan: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	loanID, err := uuid.Parse(vars["loanId"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	installments, err := s.ledger.ListInstallments(loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if installments == nil {
		installments = []*models.Installment{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(installments)
}

// authorizeCustomer enforces that the token holder may act for the given
// customer. Admins pass for any customer.
func (s *Server) authorizeCustomer(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) bool {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	if !claims.CanAccessCustomer(customerID) {
		http.Error(w, "You are not authorized to access this data", http.StatusForbidden)
		return false
	}
	return true
}
