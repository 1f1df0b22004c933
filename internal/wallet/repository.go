package wallet

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting

	"github.com/google/uuid"        // UUID identifiers
	"github.com/shopspring/decimal" // Exact money arithmetic
	"gorm.io/gorm"                  // GORM ORM library

	"wallet_saga/internal/domain" // Domain models
)

// Operation is a verified balance mutation
type Operation struct {
	TransactionID    uuid.UUID
	Type             domain.TransactionType
	SenderWalletID   uuid.UUID
	ReceiverWalletID uuid.UUID
	Amount           decimal.Decimal
}

// Repository stores wallets. Apply mutates balances at most once per transaction id:
// it returns domain.ErrAlreadyApplied for a repeated id and domain.ErrInsufficientBalance
// when a debit would make a balance negative.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
	ListAll(ctx context.Context) ([]domain.Wallet, error)
	Create(ctx context.Context, w *domain.Wallet) error
	Update(ctx context.Context, w *domain.Wallet) error
	Delete(ctx context.Context, id uuid.UUID) error
	Applied(ctx context.Context, txID uuid.UUID) (bool, error)
	Apply(ctx context.Context, op Operation) error
}

var _ Repository = (*GormRepository)(nil)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundf("wallet %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

func (r *GormRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	var out []domain.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return out, nil
}

func (r *GormRepository) ListAll(ctx context.Context) ([]domain.Wallet, error) {
	var out []domain.Wallet
	if err := r.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return out, nil
}

func (r *GormRepository) Create(ctx context.Context, w *domain.Wallet) error {
	err := r.db.WithContext(ctx).Create(w).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert wallet: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// Update writes the descriptive fields. Balances only change through Apply.
func (r *GormRepository) Update(ctx context.Context, w *domain.Wallet) error {
	res := r.db.WithContext(ctx).Model(&domain.Wallet{}).Where("id = ?", w.ID).
		Updates(map[string]any{"name": w.Name, "user_id": w.UserID})
	if res.Error != nil {
		return fmt.Errorf("update wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("wallet %s not found", w.ID)
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Wallet{})
	if res.Error != nil {
		return fmt.Errorf("delete wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("wallet %s not found", id)
	}
	return nil
}

func (r *GormRepository) Applied(ctx context.Context, txID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.AppliedOperation{}).Where("transaction_id = ?", txID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count applied: %w", err)
	}
	return n > 0, nil
}

// Apply records the operation and mutates balances in one database transaction.
// Debits are conditional updates so a concurrent debit can never overdraw the wallet.
func (r *GormRepository) Apply(ctx context.Context, op Operation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := domain.AppliedOperation{TransactionID: op.TransactionID, Type: op.Type, Amount: op.Amount}
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyApplied
			}
			return fmt.Errorf("record operation: %w", err)
		}

		switch op.Type {
		case domain.TransactionTypeCredit:
			return credit(tx, op.SenderWalletID, op.Amount)
		case domain.TransactionTypeWithdraw:
			return debit(tx, op.SenderWalletID, op.Amount)
		case domain.TransactionTypeTransfer:
			if err := debit(tx, op.SenderWalletID, op.Amount); err != nil {
				return err
			}
			return credit(tx, op.ReceiverWalletID, op.Amount)
		default:
			return domain.Validationf("unsupported transaction type %s", op.Type)
		}
	})
}

func credit(tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) error {
	res := tx.Model(&domain.Wallet{}).Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("credit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("wallet %s not found", id)
	}
	return nil
}

func debit(tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) error {
	res := tx.Model(&domain.Wallet{}).Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("debit wallet: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := tx.Model(&domain.Wallet{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("count wallet: %w", err)
	}
	if n == 0 {
		return domain.NotFoundf("wallet %s not found", id)
	}
	return domain.ErrInsufficientBalance
}
