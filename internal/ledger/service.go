// Package ledger is the system of record for transactions: it consumes creation and
// completion events, answers ledger queries and fails challenges that were never answered.
package ledger

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting

	"github.com/google/uuid"     // UUID identifiers
	"github.com/sirupsen/logrus" // Structured logging

	"wallet_saga/internal/domain" // Domain models
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	saveRetries     = 3
)

// Service guards every status change of a ledger row
type Service struct {
	repo Repository
	log  *logrus.Entry
}

func NewService(repo Repository, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log.WithField("component", "ledger")}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.repo.Get(ctx, id)
}

// GetFor returns the row if the identity may see it
func (s *Service) GetFor(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.CanAccess(tx.UserID) {
		return nil, domain.NotFoundf("transaction %s not found", id)
	}
	return tx, nil
}

// MarkFailed moves a PENDING row to FAILED
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, remarks string) error {
	return s.Complete(ctx, id, domain.StatusFailed, remarks)
}

// Complete moves a PENDING row to a terminal status.
// Repeating the current terminal status is a no-op; any other change of a terminal row is a Conflict.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, remarks string) error {
	for attempt := 1; ; attempt++ {
		tx, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if tx.Status == status {
			return nil
		}
		if !tx.Status.CanTransitionTo(status) {
			return &domain.Error{
				Kind: domain.ErrConflict,
				Msg:  fmt.Sprintf("transaction %s is already %s", id, tx.Status),
			}
		}
		tx.Status = status
		tx.Remarks = remarks
		err = s.repo.Save(ctx, tx)
		if errors.Is(err, domain.ErrStale) && attempt < saveRetries {
			continue // row changed underneath, re-read it
		}
		return err
	}
}

// Page is one page of ledger rows
type Page struct {
	Items    []domain.Transaction `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// List returns the rows visible to the identity. Admins see everything.
func (s *Service) List(ctx context.Context, who domain.Identity, f Filter) (*Page, error) {
	switch f.Kind {
	case "":
		f.Kind = KindAll
	case KindAll, KindCredits, KindWithdrawals, KindTransfers, KindFailed:
	default:
		return nil, domain.Validationf("Invalid transaction type filter: %s", f.Kind)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	if !who.IsAdmin() {
		uid := who.UserID
		f.UserID = &uid
	}

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}
