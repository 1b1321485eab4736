// Package repomanager vends repository implementations for a database
// dialect and runs that dialect's schema migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/repositories/bundles"
	"github.com/dmitrijs2005/gophvault/internal/repositories/subscriptions"
)

// RepositoryManager binds repositories to a DBTX, so the same code runs on
// *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Bundles(db dbx.DBTX) bundles.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
}
