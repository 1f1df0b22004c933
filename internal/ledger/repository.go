package ledger

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting

	"github.com/google/uuid" // UUID identifiers
	"gorm.io/gorm"           // GORM ORM library

	"wallet_saga/internal/domain" // Domain models
)

// List filters accepted by Repository.List
const (
	KindAll         = "all"
	KindCredits     = "credits"
	KindWithdrawals = "withdrawals"
	KindTransfers   = "transfers"
	KindFailed      = "failed"
)

// Filter selects a page of ledger rows
type Filter struct {
	UserID    *uuid.UUID // nil lists every user
	Kind      string
	Page      int // 1-based
	PageSize  int
	Ascending bool // by transaction date
}

// Repository is the transaction ledger store.
// Create reports domain.ErrConflict on duplicate ids and Save reports domain.ErrStale on a version mismatch.
type Repository interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Create(ctx context.Context, tx *domain.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	Save(ctx context.Context, tx *domain.Transaction) error
	ListPending(ctx context.Context) ([]domain.Transaction, error)
	List(ctx context.Context, f Filter) ([]domain.Transaction, int64, error)
}

var _ Repository = (*GormRepository)(nil)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count transaction: %w", err)
	}
	return n > 0, nil
}

func (r *GormRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	err := r.db.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundf("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &tx, nil
}

// Save writes status and remarks if the row still has tx.Version, then bumps the version
func (r *GormRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND version = ?", tx.ID, tx.Version).
		Updates(map[string]any{
			"status":  tx.Status,
			"remarks": tx.Remarks,
			"version": tx.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update transaction %s: %w", tx.ID, domain.ErrStale)
	}
	tx.Version++
	return nil
}

func (r *GormRepository) ListPending(ctx context.Context) ([]domain.Transaction, error) {
	var out []domain.Transaction
	if err := r.db.WithContext(ctx).Where("status = ?", domain.StatusPending).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return out, nil
}

func (r *GormRepository) List(ctx context.Context, f Filter) ([]domain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Transaction{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	switch f.Kind {
	case KindCredits:
		q = q.Where("type = ?", domain.TransactionTypeCredit)
	case KindWithdrawals:
		q = q.Where("type = ?", domain.TransactionTypeWithdraw)
	case KindTransfers:
		q = q.Where("type = ?", domain.TransactionTypeTransfer)
	case KindFailed:
		q = q.Where("status = ?", domain.StatusFailed)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	order := "transaction_date DESC"
	if f.Ascending {
		order = "transaction_date ASC"
	}
	var out []domain.Transaction
	err := q.Order(order).Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return out, total, nil
}
