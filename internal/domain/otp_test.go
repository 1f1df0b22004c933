package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOtpChallengeMismatch(t *testing.T) {
	c := NewOtpChallenge(uuid.New(), uuid.New(), "a@b.c", TransactionTypeWithdraw, "hash", time.Now())
	assert.Equal(t, OtpIssued, c.State)

	c = c.Mismatch(MaxOtpAttempts)
	assert.Equal(t, 1, c.Attempts)
	assert.Equal(t, OtpIssued, c.State)
	assert.Equal(t, 2, c.Remaining(MaxOtpAttempts))

	c = c.Mismatch(MaxOtpAttempts)
	assert.False(t, c.Exhausted(MaxOtpAttempts))

	c = c.Mismatch(MaxOtpAttempts)
	assert.Equal(t, 3, c.Attempts)
	assert.Equal(t, OtpExhausted, c.State)
	assert.True(t, c.Exhausted(MaxOtpAttempts))
	assert.Equal(t, 0, c.Remaining(MaxOtpAttempts))
}

func TestOtpChallengeVerifyDoesNotMutateOriginal(t *testing.T) {
	c := NewOtpChallenge(uuid.New(), uuid.New(), "", TransactionTypeCredit, "hash", time.Now())
	v := c.Verify()
	assert.Equal(t, OtpStateVerified, v.State)
	assert.Equal(t, OtpIssued, c.State)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusSuccess))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
	assert.False(t, StatusSuccess.CanTransitionTo(StatusFailed))
	assert.False(t, StatusFailed.CanTransitionTo(StatusSuccess))
}

func TestIdentity(t *testing.T) {
	owner := uuid.New()
	assert.True(t, Identity{UserID: owner, Role: "user"}.CanAccess(owner))
	assert.False(t, Identity{UserID: uuid.New(), Role: "user"}.CanAccess(owner))
	assert.True(t, Identity{UserID: uuid.New(), Role: "admin"}.CanAccess(owner))
}
