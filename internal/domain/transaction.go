package domain

import (
	"time" // Transaction timestamps

	"github.com/google/uuid"        // Transaction identifiers
	"github.com/shopspring/decimal" // Money amounts
)

// TransactionType is the kind of funds movement a transaction performs
type TransactionType string

const (
	TransactionTypeCredit   TransactionType = "CREDIT"   // Money added to the sender wallet
	TransactionTypeWithdraw TransactionType = "WITHDRAW" // Money taken from the sender wallet
	TransactionTypeTransfer TransactionType = "TRANSFER" // Money moved from sender to receiver
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeWithdraw, TransactionTypeTransfer:
		return true
	}
	return false
}

// Debits reports whether the type takes money out of the sender wallet
func (t TransactionType) Debits() bool {
	return t == TransactionTypeWithdraw || t == TransactionTypeTransfer
}

// TransactionStatus is the ledger state of a transaction
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING" // Awaiting OTP verification and execution
	StatusSuccess TransactionStatus = "SUCCESS" // Balance mutation applied
	StatusFailed  TransactionStatus = "FAILED"  // Rejected, expired or exhausted
)

// Terminal reports whether no further transition is allowed from s
func (s TransactionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo reports whether the ledger may move from s to next.
// Only PENDING moves, and only to a terminal status.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == StatusPending && next.Terminal()
}

// Transaction Model
type Transaction struct {
	ID               uuid.UUID         `gorm:"type:char(36);primaryKey" json:"id"`            // Assigned by the initiating side
	UserID           uuid.UUID         `gorm:"type:char(36);index" json:"user_id"`            // Initiating user
	SenderWalletID   uuid.UUID         `gorm:"type:char(36);index" json:"sender_wallet_id"`   // Wallet debited or credited
	ReceiverWalletID uuid.UUID         `gorm:"type:char(36);index" json:"receiver_wallet_id"` // Equals sender unless TRANSFER
	Amount           decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`     // Positive amount
	Type             TransactionType   `gorm:"type:varchar(16);not null" json:"type"`         // CREDIT, WITHDRAW or TRANSFER
	Status           TransactionStatus `gorm:"type:varchar(16);index;not null" json:"status"` // PENDING, SUCCESS or FAILED
	Remarks          string            `gorm:"type:varchar(255)" json:"remarks"`              // Free text
	TransactionDate  *time.Time        `gorm:"index" json:"transaction_date"`                 // Creation timestamp, nil means bad data
	Version          int64             `gorm:"not null;default:0" json:"-"`                   // Optimistic lock counter
	UpdatedAt        time.Time         `json:"updated_at"`                                    // Last change
}
