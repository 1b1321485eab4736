package repomanager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/repositories/bundles"
	"github.com/dmitrijs2005/gophvault/internal/repositories/subscriptions"
	"github.com/dmitrijs2005/gophvault/internal/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteManager(t *testing.T) {
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	defer db.Close()

	m := NewSQLiteRepositoryManager()
	require.NoError(t, m.RunMigrations(context.Background(), db))

	assert.IsType(t, &bundles.SQLiteRepository{}, m.Bundles(db))
	assert.IsType(t, &subscriptions.SQLiteRepository{}, m.Subscriptions(db))

	total, err := m.Bundles(db).TotalSizeByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Zero(t, total)
}
