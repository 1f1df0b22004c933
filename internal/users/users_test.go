package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_saga/internal/db/dbtest"
	"wallet_saga/internal/domain"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory(dbtest.New(t))
	ctx := context.Background()

	_, err := d.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	u := &domain.User{ID: uuid.New(), Name: "Test User", Email: "test@example.com", Role: "USER"}
	require.NoError(t, d.Upsert(ctx, u))

	u.Email = "new@example.com"
	require.NoError(t, d.Upsert(ctx, u))

	got, err := d.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
}
