// Package otp issues and verifies the one-time codes that gate every funds movement.
package otp

import (
	"context"     // Cancellation and deadlines
	"crypto/rand" // Secure random numbers
	"errors"      // Error wrapping
	"fmt"         // String formatting
	"math/big"    // Random range
	"strings"     // String manipulation
	"sync"        // Locks and wait groups
	"time"        // Time durations

	"github.com/google/uuid"     // UUID identifiers
	"github.com/sirupsen/logrus" // Structured logging
	"golang.org/x/crypto/bcrypt" // Hashing

	"wallet_saga/internal/domain" // Domain models
	"wallet_saga/internal/events" // Event bus
	"wallet_saga/internal/notify" // OTP delivery
)

const (
	// MsgExhausted is returned once a challenge ran out of attempts
	MsgExhausted = "Transaction has failed. Maximum OTP verification attempts exceeded."
	// MsgNotPending is returned when the ledger closed the transaction before the code arrived
	MsgNotPending = "Transaction has failed. It is no longer pending."

	exhaustedRemarks = "Maximum OTP verification attempts exceeded"
	subject          = "Your transaction OTP"
	codeDigits       = 6
)

// Ledger is the part of the transaction ledger the OTP service depends on
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	MarkFailed(ctx context.Context, id uuid.UUID, remarks string) error
}

type Options struct {
	TTL         time.Duration
	MaxAttempts int
	HashCost    int
	Now         func() time.Time
	Generate    func() (string, error) // Code generator, defaults to crypto/rand digits
}

type Service struct {
	store  Store
	ledger Ledger
	sender notify.Sender
	pub    events.Publisher
	opts   Options
	log    *logrus.Entry

	locks [64]sync.Mutex // verify calls for one transaction run one at a time
}

func NewService(store Store, ledger Ledger, sender notify.Sender, pub events.Publisher, opts Options, log *logrus.Entry) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = domain.MaxOtpAttempts
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Generate == nil {
		opts.Generate = GenerateCode
	}
	return &Service{
		store:  store,
		ledger: ledger,
		sender: sender,
		pub:    pub,
		opts:   opts,
		log:    log.WithField("component", "otp"),
	}
}

// GenerateCode returns a uniformly random zero-padded 6-digit code
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// Issue creates a challenge for the transaction and sends the code to email
func (s *Service) Issue(ctx context.Context, txID, userID uuid.UUID, email string, t domain.TransactionType) error {
	code, err := s.opts.Generate()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.opts.HashCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	c := domain.NewOtpChallenge(txID, userID, email, t, string(hash), s.opts.Now())
	if err := s.store.Create(ctx, c, s.opts.TTL); err != nil {
		return err
	}

	body := fmt.Sprintf("Your OTP for %s transaction %s is %s. It expires in %s.",
		strings.ToLower(string(t)), txID, code, s.opts.TTL)
	if err := s.sender.Send(ctx, email, subject, body); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}

	s.log.WithFields(logrus.Fields{"transaction_id": txID, "user_id": userID}).Info("OTP issued")
	return nil
}

func (s *Service) lock(txID uuid.UUID) *sync.Mutex {
	return &s.locks[int(txID[15])%len(s.locks)]
}

// Verify checks code against the challenge for txID.
// It returns true exactly once per challenge, after which OtpVerified has been published.
func (s *Service) Verify(ctx context.Context, txID uuid.UUID, code string) (bool, error) {
	mu := s.lock(txID)
	mu.Lock()
	defer mu.Unlock()

	l := s.log.WithField("transaction_id", txID)
	limit := s.opts.MaxAttempts

	c, err := s.store.Get(ctx, txID)
	if err != nil {
		return false, err
	}

	switch {
	case c.State == domain.OtpStateVerified:
		return false, domain.Validationf("OTP already verified")
	case c.Exhausted(limit):
		s.fail(ctx, *c)
		return false, domain.Validationf(MsgExhausted)
	}

	if bcrypt.CompareHashAndPassword([]byte(c.HashedCode), []byte(code)) != nil {
		next := c.Mismatch(limit)
		l.WithField("attempts", next.Attempts).Warn("Incorrect OTP")
		if err := s.store.Update(ctx, next); err != nil {
			return false, err
		}
		if next.State == domain.OtpExhausted {
			s.fail(ctx, next)
			return false, domain.Validationf(MsgExhausted)
		}
		return false, domain.Validationf("Incorrect OTP. Attempts remaining: %d", next.Remaining(limit))
	}

	tx, err := s.ledger.Get(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Status != domain.StatusPending {
		l.WithField("status", tx.Status).Warn("OTP submitted for a closed transaction")
		if err := s.store.Delete(ctx, txID); err != nil {
			l.WithError(err).Error("Failed to evict OTP")
		}
		return false, domain.Validationf(MsgNotPending)
	}

	if err := s.store.Update(ctx, c.Verify()); err != nil {
		return false, err
	}

	ev := domain.OtpVerified{
		TransactionID:    tx.ID,
		UserID:           c.UserID,
		SenderWalletID:   tx.SenderWalletID,
		ReceiverWalletID: tx.ReceiverWalletID,
		Amount:           tx.Amount,
		TransactionType:  c.TransactionType,
	}
	if err := s.pub.Publish(ctx, events.TopicOtpVerified, ev); err != nil {
		// back to ISSUED so the same code can be submitted again
		if rerr := s.store.Update(ctx, *c); rerr != nil {
			l.WithError(rerr).Error("Failed to restore OTP after publish error")
		}
		return false, fmt.Errorf("publish otp verified: %w", err)
	}

	l.Info("OTP verified")
	return true, nil
}

// fail marks the transaction FAILED and evicts the challenge. Both steps are best effort.
func (s *Service) fail(ctx context.Context, c domain.OtpChallenge) {
	l := s.log.WithField("transaction_id", c.TransactionID)
	if err := s.ledger.MarkFailed(ctx, c.TransactionID, exhaustedRemarks); err != nil && !errors.Is(err, domain.ErrNotFound) {
		l.WithError(err).Error("Failed to mark transaction as failed")
	}
	if err := s.store.Delete(ctx, c.TransactionID); err != nil {
		l.WithError(err).Error("Failed to evict OTP")
	}
	l.Warn("OTP attempts exhausted, transaction failed")
}
