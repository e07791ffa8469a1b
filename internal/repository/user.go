package repository

import (
	"context"

	"authgate/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	// Create inserts the user and sets its ID. A taken username yields
	// domain.ErrDuplicateUsername; uniqueness is enforced by the store.
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}
