// Package users resolves user profiles from the local lookup table.
package users

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting

	"github.com/google/uuid" // UUID identifiers
	"gorm.io/gorm"           // GORM ORM library

	"wallet_saga/internal/domain" // Domain models
)

// Lookup finds a user by id, returning domain.ErrNotFound when absent
type Lookup interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

var _ Lookup = (*Directory)(nil)

// Directory is the gorm-backed Lookup
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Upsert stores a profile copy pushed from the user service
func (d *Directory) Upsert(ctx context.Context, u *domain.User) error {
	if err := d.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
