// Package repomanager provides a factory for storage gateways bound to a
// DBTX, so services can derive transaction-scoped repositories from the
// handle their unit of work hands out.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/avoronov/jwt-auth/internal/dbx"
	"github.com/avoronov/jwt-auth/internal/server/repositories/refreshtokens"
	"github.com/avoronov/jwt-auth/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
