package notify

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/lendkit/creditledger/pkg/config"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/sirupsen/logrus"
)

// Sender delivers a single reminder. Satisfied by SMTPSender; tests swap
// in a recorder.
type Sender interface {
	SendPaymentReminder(reminder *models.Reminder) error
}

// SMTPSender handles sending reminder emails via SMTP
type SMTPSender struct {
	cfg *config.Config
	log *logrus.Logger
}

// NewSMTPSender creates a new email sender
func NewSMTPSender(cfg *config.Config, log *logrus.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

// SendPaymentReminder sends a payment reminder email
func (s *SMTPSender) SendPaymentReminder(reminder *models.Reminder) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{reminder.Email}
	if reminder.Overdue {
		e.Subject = "Overdue Loan Installment Notification"
	} else {
		e.Subject = "Upcoming Loan Installment Reminder"
	}
	e.Text = []byte(reminderBody(reminder))

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send reminder to %s: %w", reminder.Email, err)
	}

	s.log.Infof("Reminder sent to %s for installment due %s", reminder.Email, reminder.DueDate.Format("2006-01-02"))
	return nil
}

func reminderBody(reminder *models.Reminder) string {
	body := fmt.Sprintf("Dear %s,\n\n", reminder.Name)
	if reminder.Overdue {
		body += fmt.Sprintf(
			"Your loan installment of %s was due on %s and is now overdue.\n"+
				"A late-payment penalty of 0.1%% per day applies until it is settled.\n"+
				"Please make the payment as soon as possible to avoid further penalties.\n",
			reminder.Amount.StringFixed(2), reminder.DueDate.Format("2006-01-02"),
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that your loan installment of %s is due on %s.\n"+
				"Paying before the due date earns a 0.1%% per day early-payment discount.\n",
			reminder.Amount.StringFixed(2), reminder.DueDate.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nCredit Ledger"
	return body
}

// Worker selects due and overdue installments and pushes reminders out.
type Worker struct {
	storage store.Storage
	sender  Sender
	log     *logrus.Logger
	days    int
}

// NewWorker creates a reminder worker that covers installments due within
// the given number of days, plus anything already overdue.
func NewWorker(storage store.Storage, sender Sender, log *logrus.Logger, days int) *Worker {
	return &Worker{storage: storage, sender: sender, log: log, days: days}
}

// Run performs one reminder sweep. Send failures are logged and skipped so
// one bad address does not starve the rest of the batch.
func (w *Worker) Run() {
	now := time.Now()
	cutoff := now.AddDate(0, 0, w.days)

	reminders, err := w.storage.ListReminders(cutoff)
	if err != nil {
		w.log.Errorf("Failed to list reminders: %v", err)
		return
	}

	sent := 0
	for _, reminder := range reminders {
		reminder.Overdue = reminder.DueDate.Before(now)
		if err := w.sender.SendPaymentReminder(reminder); err != nil {
			w.log.Errorf("Failed to send reminder: %v", err)
			continue
		}
		sent++
	}

	w.log.Infof("Reminder sweep complete: %d of %d sent", sent, len(reminders))
}
