// Package users declares the storage gateway for user identity records.
package users

import (
	"context"

	"github.com/avoronov/jwt-auth/internal/server/models"
)

// Repository defines persistence operations for users. Implementations
// return common.ErrUserNotFound when a lookup matches no row and
// common.ErrUserAlreadyExists when an insert hits the email uniqueness
// constraint.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
