package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronov/jwt-auth/internal/common"
	"github.com/avoronov/jwt-auth/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (string, error) {
	query :=
		`SELECT token FROM refresh_tokens
		 WHERE user_id = $1
		 `

	var token string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&token)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrRefreshTokenNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string) error {
	query :=
		`INSERT INTO refresh_tokens (user_id, token)
		 VALUES ($1, $2)
		 `

	_, err := r.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID int64, token string) error {
	query :=
		`UPDATE refresh_tokens SET token = $2
		 WHERE user_id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrRefreshTokenNotFound
	}

	return nil
}
