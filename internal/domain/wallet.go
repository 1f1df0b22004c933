package domain

import (
	"time" // Wallet timestamps

	"github.com/google/uuid"        // Wallet identifiers
	"github.com/shopspring/decimal" // Balances
)

// MoneyScale is the number of fractional digits stored for balances and amounts
const MoneyScale = 2

// FitsMoneyScale reports whether d is stored without rounding
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// Wallet Model
type Wallet struct {
	ID            uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`                   // Primary key
	UserID        uuid.UUID       `gorm:"type:char(36);index;not null" json:"user_id"`          // Owner
	Name          string          `gorm:"type:varchar(100);not null" json:"name"`               // Display name
	AccountNumber string          `gorm:"type:varchar(20);uniqueIndex" json:"account_number"`   // Luhn-valid account number
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // Never negative after a mutation
	Passcode      string          `gorm:"not null" json:"-"`                                    // bcrypt hash of the transaction passcode
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AppliedOperation records that the balance mutation for a transaction was applied.
// Its primary key makes a redelivered OtpVerified event a no-op.
type AppliedOperation struct {
	TransactionID uuid.UUID       `gorm:"type:char(36);primaryKey"` // One row per executed transaction
	Type          TransactionType `gorm:"type:varchar(16);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	AppliedAt     time.Time       `gorm:"autoCreateTime"`
}
