// Package services contains the server-side business logic: the auth
// orchestrator (login, registration, token rotation) and user lookups. Each
// operation runs its storage work inside one or more dbx.WithTx scopes.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"

	"github.com/avoronov/jwt-auth/internal/common"
	"github.com/avoronov/jwt-auth/internal/dbx"
	"github.com/avoronov/jwt-auth/internal/logging"
	"github.com/avoronov/jwt-auth/internal/server/auth"
	"github.com/avoronov/jwt-auth/internal/server/models"
	"github.com/avoronov/jwt-auth/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a longer-lived refresh
// token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService implements the authentication protocol:
// - Login: verify credentials and mint a token pair
// - Register: create users
// - CheckRefreshToken: compare a presented refresh token with the stored one
// - RefreshTokens: rotate the stored refresh token and mint a new pair
type AuthService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	tokens    *auth.TokenIssuer
	passwords *auth.PasswordHasher
	logger    logging.Logger
}

func NewAuthService(db *sql.DB, repos repomanager.RepositoryManager, tokens *auth.TokenIssuer, passwords *auth.PasswordHasher, logger logging.Logger) *AuthService {
	return &AuthService{
		db:        db,
		repos:     repos,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger.With("module", "auth_service"),
	}
}

// Login verifies the password for the user registered under email and, on
// success, issues a fresh token pair, replacing the stored refresh token.
// The first login inserts the refresh-token row; later logins update it.
func (s *AuthService) Login(ctx context.Context, email string, password string) (*TokenPair, error) {
	var pair *TokenPair

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repos.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			return err
		}

		if !s.passwords.Check(password, user.PasswordHash) {
			return ErrInvalidPassword
		}

		p, err := s.issuePair(user.ID)
		if err != nil {
			return err
		}

		repo := s.repos.RefreshTokens(tx)
		if err := repo.Update(ctx, user.ID, p.RefreshToken); err != nil {
			if !errors.Is(err, common.ErrRefreshTokenNotFound) {
				return err
			}
			// first login for this user, no row to replace yet
			if err := repo.Create(ctx, user.ID, p.RefreshToken); err != nil {
				return err
			}
		}

		pair = p
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, common.ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, ErrInvalidPassword):
			return nil, ErrInvalidPassword
		}
		s.logger.Error(ctx, "login failed", "email", email, "error", err)
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "email", email)
	return pair, nil
}

// Register creates a new user. The email lookup and the insert run in
// separate transactions; the unique index on users.email is the real guard
// against two concurrent registrations passing the lookup.
func (s *AuthService) Register(ctx context.Context, email string, password string) (*models.User, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repos.Users(tx).GetByEmail(ctx, email)
		return err
	})
	if err == nil {
		return nil, ErrUserAlreadyRegistered
	}
	if !errors.Is(err, common.ErrUserNotFound) {
		s.logger.Error(ctx, "registration lookup failed", "email", email, "error", err)
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "email", email, "error", err)
		return nil, err
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repos.Users(tx).Create(ctx, &models.User{Email: email, PasswordHash: hash})
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrUserAlreadyExists) {
			return nil, ErrUserAlreadyRegistered
		}
		s.logger.Error(ctx, "registration failed", "email", email, "error", err)
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "email", email, "user_id", user.ID)
	return user, nil
}

// CheckRefreshToken compares the presented refresh token with the one stored
// for userID. A mismatch is indistinguishable from an absent token on
// purpose: both return ErrRefreshTokenNotFound.
func (s *AuthService) CheckRefreshToken(ctx context.Context, userID int64, refreshToken string) error {
	var stored string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		t, err := s.repos.RefreshTokens(tx).Get(ctx, userID)
		if err != nil {
			return err
		}
		stored = t
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenNotFound) {
			return ErrRefreshTokenNotFound
		}
		s.logger.Error(ctx, "refresh token lookup failed", "user_id", userID, "error", err)
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return ErrRefreshTokenNotFound
	}

	return nil
}

// RefreshTokens mints a new token pair for userID and replaces the stored
// refresh token. The caller must have validated the presented refresh token
// (signature, expiry, type and storage comparison) before invoking this.
// The previous token stays valid as a signed artifact until its own expiry,
// but CheckRefreshToken rejects it once the stored value changes — storage
// comparison, not signature validity, is the source of truth.
func (s *AuthService) RefreshTokens(ctx context.Context, userID int64) (*TokenPair, error) {
	pair, err := s.issuePair(userID)
	if err != nil {
		s.logger.Error(ctx, "token generation failed", "user_id", userID, "error", err)
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repos.RefreshTokens(tx).Update(ctx, userID, pair.RefreshToken)
	})
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenNotFound) {
			return nil, ErrRefreshTokenNotFound
		}
		s.logger.Error(ctx, "token rotation failed", "user_id", userID, "error", err)
		return nil, err
	}

	return pair, nil
}

func (s *AuthService) issuePair(userID int64) (*TokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
