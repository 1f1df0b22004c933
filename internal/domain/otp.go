package domain

import (
	"time" // Time durations

	"github.com/google/uuid" // UUID identifiers
)

// MaxOtpAttempts is the number of wrong codes after which a challenge is exhausted
const MaxOtpAttempts = 3

// OtpState is the lifecycle state of a one-time challenge
type OtpState string

const (
	OtpIssued        OtpState = "ISSUED"    // Waiting for the correct code
	OtpStateVerified OtpState = "VERIFIED"  // Correct code received, cannot be used again
	OtpExhausted     OtpState = "EXHAUSTED" // Too many wrong codes
)

// OtpChallenge guards one transaction. It never holds the plaintext code.
type OtpChallenge struct {
	TransactionID   uuid.UUID       `json:"transaction_id"`
	UserID          uuid.UUID       `json:"user_id"`
	UserEmail       string          `json:"user_email"`
	TransactionType TransactionType `json:"transaction_type"`
	HashedCode      string          `json:"hashed_code"`
	Attempts        int             `json:"attempts"`
	State           OtpState        `json:"state"`
	IssuedAt        time.Time       `json:"issued_at"`
}

// NewOtpChallenge returns an ISSUED challenge with no attempts
func NewOtpChallenge(txID, userID uuid.UUID, email string, t TransactionType, hashed string, now time.Time) OtpChallenge {
	return OtpChallenge{
		TransactionID:   txID,
		UserID:          userID,
		UserEmail:       email,
		TransactionType: t,
		HashedCode:      hashed,
		State:           OtpIssued,
		IssuedAt:        now,
	}
}

// Mismatch returns the challenge after one more wrong code.
// The challenge becomes EXHAUSTED once attempts reach limit.
func (c OtpChallenge) Mismatch(limit int) OtpChallenge {
	c.Attempts++
	if c.Attempts >= limit {
		c.State = OtpExhausted
	}
	return c
}

// Verify returns the challenge in the VERIFIED state
func (c OtpChallenge) Verify() OtpChallenge {
	c.State = OtpStateVerified
	return c
}

// Exhausted reports whether no more attempts are allowed
func (c OtpChallenge) Exhausted(limit int) bool {
	return c.State == OtpExhausted || c.Attempts >= limit
}

// Remaining returns how many wrong codes may still be submitted
func (c OtpChallenge) Remaining(limit int) int {
	if r := limit - c.Attempts; r > 0 {
		return r
	}
	return 0
}
