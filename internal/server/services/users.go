package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/avoronov/jwt-auth/internal/common"
	"github.com/avoronov/jwt-auth/internal/dbx"
	"github.com/avoronov/jwt-auth/internal/logging"
	"github.com/avoronov/jwt-auth/internal/server/models"
	"github.com/avoronov/jwt-auth/internal/server/repositories/repomanager"
)

// UserService provides user lookups for authenticated callers.
type UserService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

func NewUserService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{
		db:     db,
		repos:  repos,
		logger: logger.With("module", "user_service"),
	}
}

// GetUser returns the user with the given id, or ErrUserNotFound when the
// subject no longer exists.
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repos.Users(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error(ctx, "user lookup failed", "user_id", id, "error", err)
		return nil, err
	}

	return user, nil
}
