package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/repositories/bundles"
	"github.com/dmitrijs2005/gophvault/internal/repositories/subscriptions"
	"github.com/dmitrijs2005/gophvault/internal/sqlitedb"
)

// SQLiteRepositoryManager vends SQLite-backed repositories.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Bundles(db dbx.DBTX) bundles.Repository {
	return bundles.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Subscriptions(db dbx.DBTX) subscriptions.Repository {
	return subscriptions.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return sqlitedb.Migrate(ctx, db)
}

func NewSQLiteRepositoryManager() RepositoryManager {
	return &SQLiteRepositoryManager{}
}
