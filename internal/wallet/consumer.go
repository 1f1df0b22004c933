package wallet

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting

	"github.com/sirupsen/logrus" // Structured logging

	"wallet_saga/internal/domain" // Domain models
	"wallet_saga/internal/events" // Event bus
)

const (
	remarksCompleted    = "Transaction completed"
	remarksNotFound     = "wallet not found"
	remarksInsufficient = "insufficient balance"
	remarksFailed       = "transaction failed"
)

// Consumer executes verified transactions and reports exactly one completion per delivery
type Consumer struct {
	repo Repository
	pub  events.Publisher
	log  *logrus.Entry
}

func NewConsumer(repo Repository, pub events.Publisher, log *logrus.Entry) *Consumer {
	return &Consumer{repo: repo, pub: pub, log: log.WithField("component", "wallet.consumer")}
}

// OnOtpVerified applies the mutation and publishes TransactionCompleted.
// Mutation errors become a FAILED completion. Only a failed publish is returned, and
// redelivery after that is safe because applied operations are recorded.
func (c *Consumer) OnOtpVerified(ctx context.Context, ev domain.OtpVerified) error {
	l := c.log.WithFields(logrus.Fields{"transaction_id": ev.TransactionID, "type": ev.TransactionType})

	status, remarks := c.execute(ctx, l, ev)
	done := domain.TransactionCompleted{TransactionID: ev.TransactionID, Status: status, Remarks: remarks}
	if err := c.pub.Publish(ctx, events.TopicTransactionCompleted, done); err != nil {
		l.WithError(err).Error("Failed to publish completion")
		return fmt.Errorf("publish completion: %w", err)
	}
	l.WithFields(logrus.Fields{"status": status, "remarks": remarks}).Info("Transaction executed")
	return nil
}

func (c *Consumer) execute(ctx context.Context, l *logrus.Entry, ev domain.OtpVerified) (status domain.TransactionStatus, remarks string) {
	defer func() {
		if r := recover(); r != nil {
			l.WithField("panic", r).Error("Execution panicked")
			status, remarks = domain.StatusFailed, remarksFailed
		}
	}()
	failed := func(err error, msg string) (domain.TransactionStatus, string) {
		l.WithError(err).Warn("Transaction failed: " + msg)
		return domain.StatusFailed, msg
	}

	applied, err := c.repo.Applied(ctx, ev.TransactionID)
	if err != nil {
		return failed(err, remarksFailed)
	}
	if applied {
		l.Info("Operation already applied, reporting success again")
		return domain.StatusSuccess, remarksCompleted
	}

	if !ev.Amount.IsPositive() {
		return failed(nil, "invalid amount")
	}

	sender, err := c.repo.Get(ctx, ev.SenderWalletID)
	if err != nil {
		return failed(err, lookupRemarks(err))
	}
	if ev.ReceiverWalletID != ev.SenderWalletID {
		if _, err := c.repo.Get(ctx, ev.ReceiverWalletID); err != nil {
			return failed(err, lookupRemarks(err))
		}
	}

	switch ev.TransactionType {
	case domain.TransactionTypeCredit:
	case domain.TransactionTypeWithdraw, domain.TransactionTypeTransfer:
		if sender.Balance.LessThan(ev.Amount) {
			return failed(domain.ErrInsufficientBalance, remarksInsufficient)
		}
	default:
		return failed(nil, "unsupported transaction type")
	}

	err = c.repo.Apply(ctx, Operation{
		TransactionID:    ev.TransactionID,
		Type:             ev.TransactionType,
		SenderWalletID:   ev.SenderWalletID,
		ReceiverWalletID: ev.ReceiverWalletID,
		Amount:           ev.Amount,
	})
	switch {
	case err == nil, errors.Is(err, domain.ErrAlreadyApplied):
		return domain.StatusSuccess, remarksCompleted
	case errors.Is(err, domain.ErrInsufficientBalance):
		return failed(err, remarksInsufficient)
	case errors.Is(err, domain.ErrNotFound):
		return failed(err, remarksNotFound)
	default:
		return failed(err, remarksFailed)
	}
}

func lookupRemarks(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return remarksNotFound
	}
	return remarksFailed
}
