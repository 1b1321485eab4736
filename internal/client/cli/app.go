package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/blobstore"
	"github.com/dmitrijs2005/gophvault/internal/client/config"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/device"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/sqlitedb"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"github.com/dmitrijs2005/gophvault/internal/vault/disguise"
	"github.com/dmitrijs2005/gophvault/internal/vault/engine"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"github.com/dmitrijs2005/gophvault/internal/vault/quota"
	"github.com/dmitrijs2005/gophvault/internal/vault/store"
)

type App struct {
	config *config.Config
	db     *sql.DB
	vault  *vault.Vault
	ledger *ledger.Ledger
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the vault under c.DataDir, creating it on first use. Only
// warnings and errors are logged, to stderr.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stderr, slog.LevelWarn)
	return newApp(ctx, c, cryptox.NewArgon2KeyProvider(), logger)
}

func newApp(ctx context.Context, c *config.Config, keys cryptox.KeyProvider, logger logging.Logger) (*App, error) {
	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("data dir init error: %w", err)
	}

	blobs, err := blobstore.NewFSStore(c.BlobDir())
	if err != nil {
		return nil, fmt.Errorf("blob storage init error: %w", err)
	}

	db, err := sqlitedb.OpenMigrated(ctx, c.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	rm := repomanager.NewSQLiteRepositoryManager()
	l := ledger.New(db, rm, ledger.DefaultConfig(), logger)
	q := quota.NewEnforcer(db, rm, l.GracePeriod(), logger)
	s := store.New(db, rm, blobs, logger)
	e := engine.New(keys, device.NewFileProvider(c.DeviceIDFile()), disguise.NewNamer(s), s,
		engine.Config{ChunkSize: c.ChunkSize}, logger)

	return &App{
		config: c,
		db:     db,
		vault:  vault.New(l, q, e, s, logger),
		ledger: l,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// Run starts the REPL and closes the vault when it ends.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	printlnFn("Welcome to gophvault (type 'help' for commands)")
	runREPL(ctx, a, a.promptStatus, a.reader)
}

func (a *App) Close() error {
	return a.db.Close()
}

// promptStatus renders the owner and subscription state for the prompt.
func (a *App) promptStatus() string {
	sub, err := a.ledger.Current(context.Background(), a.config.UserID)
	if err != nil {
		return fmt.Sprintf("(%s)", a.config.UserID)
	}
	return fmt.Sprintf("(%s %s/%s)", a.config.UserID, sub.Tier, sub.Status)
}
