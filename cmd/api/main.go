package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/lendkit/creditledger/pkg/auth"
	"github.com/lendkit/creditledger/pkg/config"
	"github.com/lendkit/creditledger/pkg/notify"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize storage
	var storage store.Storage
	switch cfg.DBDriver {
	case "postgres":
		storage, err = store.NewPostgresStore(cfg.DBConn)
	default:
		storage, err = store.NewSQLiteStore(cfg.DBConn)
	}
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.DBDriver, err)
	}
	defer storage.Close()

	// Initialize layers
	authSvc := auth.NewService(storage, logger, cfg)
	if err := authSvc.EnsureAdmin(); err != nil {
		logger.Fatalf("Failed to seed admin user: %v", err)
	}
	server := NewServer(storage, authSvc, logger)

	// Setup router
	router := mux.NewRouter()
	router.HandleFunc("/login", server.loginHandler).Methods("POST")

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(authSvc.Middleware)
	protected.HandleFunc("/customers", server.createCustomerHandler).Methods("POST")
	protected.HandleFunc("/api/v1/loans", server.createLoanHandler).Methods("POST")
	protected.HandleFunc("/api/v1/loans/pay", server.payLoanHandler).Methods("POST")
	protected.HandleFunc("/api/v1/loans/installments/{loanId}", server.listInstallmentsHandler).Methods("GET")
	protected.HandleFunc("/api/v1/loans/{customerId}", server.listLoansHandler).Methods("GET")

	// Schedule the payment reminder job
	reminderWorker := notify.NewWorker(storage, notify.NewSMTPSender(cfg, logger), logger, cfg.ReminderDays)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReminderSchedule, reminderWorker.Run); err != nil {
		logger.Fatalf("Failed to schedule reminder job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
