package ledger

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting
	"strings" // String manipulation
	"time"    // Time durations

	"github.com/google/uuid"     // UUID identifiers
	"github.com/sirupsen/logrus" // Structured logging

	"wallet_saga/internal/domain" // Domain models
	"wallet_saga/internal/users"  // User profiles
)

// Issuer challenges the user of a newly created transaction
type Issuer interface {
	Issue(ctx context.Context, txID, userID uuid.UUID, email string, t domain.TransactionType) error
}

// Consumer applies TransactionCreated and TransactionCompleted events to the ledger
type Consumer struct {
	repo          Repository
	ledger        *Service
	issuer        Issuer
	users         users.Lookup // optional
	fallbackEmail string
	now           func() time.Time
	log           *logrus.Entry
}

type ConsumerOptions struct {
	Users         users.Lookup
	FallbackEmail string
	Now           func() time.Time
}

func NewConsumer(repo Repository, ledger *Service, issuer Issuer, opts ConsumerOptions, log *logrus.Entry) *Consumer {
	if opts.FallbackEmail == "" {
		opts.FallbackEmail = "user@example.com"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Consumer{
		repo:          repo,
		ledger:        ledger,
		issuer:        issuer,
		users:         opts.Users,
		fallbackEmail: opts.FallbackEmail,
		now:           opts.Now,
		log:           log.WithField("component", "ledger.consumer"),
	}
}

// OnTransactionCreated persists a PENDING row once per transaction id and issues its OTP.
// Errors returned here leave the event for redelivery.
func (c *Consumer) OnTransactionCreated(ctx context.Context, ev domain.TransactionCreated) error {
	l := c.log.WithFields(logrus.Fields{"transaction_id": ev.TransactionID, "type": ev.TransactionType})

	exists, err := c.repo.Exists(ctx, ev.TransactionID)
	if err != nil {
		return err
	}
	if exists {
		l.Info("Transaction already recorded, skipping duplicate event")
		return nil
	}

	if !ev.Amount.IsPositive() {
		l.WithField("amount", ev.Amount.String()).Error("Dropping transaction with non-positive amount")
		return nil
	}

	now := c.now().UTC()
	tx := &domain.Transaction{
		ID:               ev.TransactionID,
		UserID:           ev.UserID,
		SenderWalletID:   ev.SenderWalletID,
		ReceiverWalletID: ev.ReceiverWalletID,
		Amount:           ev.Amount,
		Type:             ev.TransactionType,
		Status:           domain.StatusPending,
		Remarks:          ev.Remarks,
		TransactionDate:  &now,
	}

	err = c.repo.Create(ctx, tx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		l.Info("Concurrent duplicate absorbed")
		return nil
	case errors.Is(err, domain.ErrStale):
		exists, cerr := c.repo.Exists(ctx, ev.TransactionID)
		if cerr != nil {
			return cerr
		}
		if exists {
			return nil
		}
		l.WithError(err).Error("Optimistic locking failure on a transaction that does not exist")
		return domain.Fatalf("Optimistic locking failure while creating transaction %s", ev.TransactionID)
	default:
		return err
	}
	l.Info("Transaction recorded as PENDING")

	email := c.resolveEmail(ctx, ev)
	if err := c.issuer.Issue(ctx, ev.TransactionID, ev.UserID, email, ev.TransactionType); err != nil {
		// redelivery would skip the existing row, so fail it now
		l.WithError(err).Error("Failed to issue OTP")
		if ferr := c.ledger.MarkFailed(ctx, ev.TransactionID, "OTP could not be delivered"); ferr != nil {
			l.WithError(ferr).Error("Failed to mark transaction as failed")
		}
	}
	return nil
}

func (c *Consumer) resolveEmail(ctx context.Context, ev domain.TransactionCreated) string {
	if email := strings.TrimSpace(ev.UserEmail); email != "" {
		return email
	}
	if c.users != nil {
		u, err := c.users.Get(ctx, ev.UserID)
		if err == nil && strings.TrimSpace(u.Email) != "" {
			return strings.TrimSpace(u.Email)
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			c.log.WithError(err).WithField("user_id", ev.UserID).Warn("User lookup failed")
		}
	}
	return c.fallbackEmail
}

// OnTransactionCompleted finalizes the row. It never returns an error.
func (c *Consumer) OnTransactionCompleted(ctx context.Context, ev domain.TransactionCompleted) error {
	l := c.log.WithFields(logrus.Fields{"transaction_id": ev.TransactionID, "status": ev.Status})

	err := c.ledger.Complete(ctx, ev.TransactionID, ev.Status, ev.Remarks)
	switch {
	case err == nil:
		l.Info("Transaction completed")
	case errors.Is(err, domain.ErrNotFound):
		l.Warn("Completion for unknown transaction ignored")
	case errors.Is(err, domain.ErrConflict):
		l.WithError(err).Error("Completion conflicts with recorded status")
	default:
		l.WithError(fmt.Errorf("complete transaction: %w", err)).Error("Failed to persist completion")
	}
	return nil
}
