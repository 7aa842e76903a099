package repomanager

import (
	"context"
	"database/sql"

	"github.com/example/sessionkeeper/internal/dbx"
	"github.com/example/sessionkeeper/internal/server/repositories/blacklist"
	"github.com/example/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/example/sessionkeeper/internal/server/repositories/secrets"
)

// RepositoryManager vends repository implementations bound to a DBTX, so the
// same repository code runs inside and outside transactions, and owns schema
// migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Secrets(db dbx.DBTX) secrets.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Blacklist(db dbx.DBTX) blacklist.Repository
}
