// Package refreshtokens declares the storage gateway for the single active
// refresh token kept per user.
package refreshtokens

import "context"

// Repository defines operations on the per-user refresh token row.
type Repository interface {
	// Get returns the stored token for userID, or
	// common.ErrRefreshTokenNotFound when none exists.
	Get(ctx context.Context, userID int64) (string, error)

	// Create inserts a new row for userID. It assumes no row exists yet;
	// the unique index on user_id rejects a second insert.
	Create(ctx context.Context, userID int64, token string) error

	// Update replaces the stored token for userID. When no row is affected
	// it returns common.ErrRefreshTokenNotFound, which is how callers decide
	// between insert and update.
	Update(ctx context.Context, userID int64, token string) error
}
