// Package wallet owns wallets: it accepts funds movement requests, emits TransactionCreated,
// and executes the mutation once the OTP for the transaction was verified.
package wallet

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting
	"regexp"  // Regular expressions
	"strings" // String manipulation

	"github.com/google/uuid"        // UUID identifiers
	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"golang.org/x/crypto/bcrypt"    // Hashing

	"wallet_saga/internal/domain" // Domain models
	"wallet_saga/internal/events" // Event bus
	"wallet_saga/internal/users"  // User profiles
)

var passcodePattern = regexp.MustCompile(`^\d{4,6}$`)

const accountNumberTries = 5

type Service struct {
	repo          Repository
	users         users.Lookup
	pub           events.Publisher
	hashCost      int
	fallbackEmail string
	newID         func() uuid.UUID
	log           *logrus.Entry
}

type ServiceOptions struct {
	HashCost      int
	FallbackEmail string
	NewID         func() uuid.UUID
}

func NewService(repo Repository, lookup users.Lookup, pub events.Publisher, opts ServiceOptions, log *logrus.Entry) *Service {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.FallbackEmail == "" {
		opts.FallbackEmail = "user@example.com"
	}
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}
	return &Service{
		repo:          repo,
		users:         lookup,
		pub:           pub,
		hashCost:      opts.HashCost,
		fallbackEmail: opts.FallbackEmail,
		newID:         opts.NewID,
		log:           log.WithField("component", "wallet"),
	}
}

// CreateRequest opens a wallet. Admins may open one for another user.
type CreateRequest struct {
	UserID   *uuid.UUID      `json:"user_id"`
	Name     string          `json:"name" binding:"required"`
	Passcode string          `json:"passcode" binding:"required"`
	Balance  decimal.Decimal `json:"balance"`
}

func (s *Service) Create(ctx context.Context, who domain.Identity, req CreateRequest) (*domain.Wallet, error) {
	owner := who.UserID
	if req.UserID != nil && *req.UserID != who.UserID {
		if !who.IsAdmin() {
			return nil, domain.Validationf("Cannot create a wallet for another user")
		}
		owner = *req.UserID
	}
	if _, err := s.users.Get(ctx, owner); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return nil, domain.Validationf("Wallet name must be between 1 and 100 characters")
	}
	if !passcodePattern.MatchString(req.Passcode) {
		return nil, domain.Validationf("Passcode must be 4 to 6 digits")
	}
	if req.Balance.IsNegative() {
		return nil, domain.Validationf("Balance cannot be negative")
	}
	if !domain.FitsMoneyScale(req.Balance) {
		return nil, domain.Validationf("Balance cannot have more than %d decimal places", domain.MoneyScale)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Passcode), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash passcode: %w", err)
	}

	w := &domain.Wallet{
		ID:       s.newID(),
		UserID:   owner,
		Name:     name,
		Balance:  req.Balance,
		Passcode: string(hash),
	}
	for try := 1; ; try++ {
		if w.AccountNumber, err = NewAccountNumber(); err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, w)
		if errors.Is(err, domain.ErrConflict) && try < accountNumberTries {
			continue // account number taken
		}
		if err != nil {
			return nil, err
		}
		break
	}

	s.log.WithFields(logrus.Fields{"wallet_id": w.ID, "user_id": owner}).Info("Wallet created")
	return w, nil
}

// List returns the caller's wallets, or every wallet for an admin
func (s *Service) List(ctx context.Context, who domain.Identity) ([]domain.Wallet, error) {
	if who.IsAdmin() {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByUser(ctx, who.UserID)
}

// Get returns a wallet the caller may see. Other users' wallets are reported as not found.
func (s *Service) Get(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Wallet, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.CanAccess(w.UserID) {
		return nil, domain.NotFoundf("wallet %s not found", id)
	}
	return w, nil
}

type UpdateRequest struct {
	Name   *string    `json:"name"`
	UserID *uuid.UUID `json:"user_id"` // admin only
}

func (s *Service) Update(ctx context.Context, who domain.Identity, id uuid.UUID, req UpdateRequest) (*domain.Wallet, error) {
	w, err := s.Get(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 100 {
			return nil, domain.Validationf("Wallet name must be between 1 and 100 characters")
		}
		w.Name = name
	}
	if req.UserID != nil && *req.UserID != w.UserID {
		if !who.IsAdmin() {
			return nil, domain.Validationf("Only an admin can change the wallet owner")
		}
		if _, err := s.users.Get(ctx, *req.UserID); err != nil {
			return nil, err
		}
		w.UserID = *req.UserID
	}
	if err := s.repo.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) Delete(ctx context.Context, who domain.Identity, id uuid.UUID) error {
	w, err := s.Get(ctx, who, id)
	if err != nil {
		return err
	}
	if !w.Balance.IsZero() {
		return domain.Validationf("Wallet balance must be zero before deletion")
	}
	return s.repo.Delete(ctx, id)
}

// MoneyRequest credits or withdraws from one wallet
type MoneyRequest struct {
	WalletID uuid.UUID       `json:"wallet_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Passcode string          `json:"passcode" binding:"required"`
}

// TransferRequest moves money between two wallets
type TransferRequest struct {
	FromWalletID uuid.UUID       `json:"from_wallet_id" binding:"required"`
	ToWalletID   uuid.UUID       `json:"to_wallet_id" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Passcode     string          `json:"passcode" binding:"required"`
}

func (s *Service) Credit(ctx context.Context, who domain.Identity, req MoneyRequest) (uuid.UUID, error) {
	return s.initiate(ctx, who, req.WalletID, req.WalletID, req.Amount, req.Passcode,
		domain.TransactionTypeCredit, "credit transaction")
}

func (s *Service) Withdraw(ctx context.Context, who domain.Identity, req MoneyRequest) (uuid.UUID, error) {
	return s.initiate(ctx, who, req.WalletID, req.WalletID, req.Amount, req.Passcode,
		domain.TransactionTypeWithdraw, "withdrawal transaction")
}

func (s *Service) Transfer(ctx context.Context, who domain.Identity, req TransferRequest) (uuid.UUID, error) {
	if req.FromWalletID == req.ToWalletID {
		return uuid.Nil, domain.Validationf("Cannot transfer to the same wallet")
	}
	return s.initiate(ctx, who, req.FromWalletID, req.ToWalletID, req.Amount, req.Passcode,
		domain.TransactionTypeTransfer, "transfer transaction")
}

// initiate checks request-time preconditions and emits TransactionCreated.
// Balances are checked again when the verified transaction executes.
func (s *Service) initiate(ctx context.Context, who domain.Identity, from, to uuid.UUID, amount decimal.Decimal,
	passcode string, t domain.TransactionType, remarks string) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, domain.Validationf("Amount must be greater than zero")
	}
	if !domain.FitsMoneyScale(amount) {
		return uuid.Nil, domain.Validationf("Amount cannot have more than %d decimal places", domain.MoneyScale)
	}

	w, err := s.repo.Get(ctx, from)
	if err != nil {
		return uuid.Nil, err
	}
	if w.UserID != who.UserID {
		return uuid.Nil, domain.Validationf("Wallet does not belong to the current user")
	}
	if bcrypt.CompareHashAndPassword([]byte(w.Passcode), []byte(passcode)) != nil {
		return uuid.Nil, domain.Validationf("Invalid passcode")
	}
	if t.Debits() && w.Balance.LessThan(amount) {
		return uuid.Nil, domain.Validationf("Insufficient balance")
	}
	if to != from {
		if _, err := s.repo.Get(ctx, to); err != nil {
			return uuid.Nil, err
		}
	}

	ev := domain.TransactionCreated{
		TransactionID:    s.newID(),
		UserID:           who.UserID,
		SenderWalletID:   from,
		ReceiverWalletID: to,
		Amount:           amount,
		TransactionType:  t,
		Remarks:          remarks,
		UserEmail:        s.email(ctx, who),
	}
	if err := s.pub.Publish(ctx, events.TopicTransactionCreated, ev); err != nil {
		return uuid.Nil, fmt.Errorf("publish transaction created: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": ev.TransactionID,
		"type":           t,
		"amount":         amount.String(),
	}).Info("Transaction requested")
	return ev.TransactionID, nil
}

// email resolves the notification address: identity, then the user profile, then the fallback
func (s *Service) email(ctx context.Context, who domain.Identity) string {
	if e := strings.TrimSpace(who.Email); e != "" {
		return e
	}
	if u, err := s.users.Get(ctx, who.UserID); err == nil && strings.TrimSpace(u.Email) != "" {
		return strings.TrimSpace(u.Email)
	}
	return s.fallbackEmail
}
