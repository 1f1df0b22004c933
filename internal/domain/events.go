package domain

import (
	"github.com/google/uuid"        // UUID identifiers
	"github.com/shopspring/decimal" // Exact money arithmetic
)

// TransactionCreated is emitted by the wallet side once a request passed its preconditions
type TransactionCreated struct {
	TransactionID    uuid.UUID       `json:"transactionId" validate:"required"`
	UserID           uuid.UUID       `json:"userId" validate:"required"`
	SenderWalletID   uuid.UUID       `json:"senderWalletId" validate:"required"`
	ReceiverWalletID uuid.UUID       `json:"receiverWalletId" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	TransactionType  TransactionType `json:"transactionType" validate:"oneof=CREDIT WITHDRAW TRANSFER"`
	Remarks          string          `json:"remarks"`
	UserEmail        string          `json:"userEmail"`
}

// OtpVerified is emitted by the OTP service when the correct code was submitted
type OtpVerified struct {
	TransactionID    uuid.UUID       `json:"transactionId" validate:"required"`
	UserID           uuid.UUID       `json:"userId"`
	SenderWalletID   uuid.UUID       `json:"senderWalletId" validate:"required"`
	ReceiverWalletID uuid.UUID       `json:"receiverWalletId" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	TransactionType  TransactionType `json:"transactionType" validate:"required"`
}

// TransactionCompleted reports the outcome of the balance mutation
type TransactionCompleted struct {
	TransactionID uuid.UUID         `json:"transactionId" validate:"required"`
	Status        TransactionStatus `json:"status" validate:"oneof=SUCCESS FAILED"`
	Remarks       string            `json:"remarks"`
}
