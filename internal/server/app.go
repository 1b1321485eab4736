// Package server wires the vault daemon: database, blob storage, device
// identity, the vault components, the gRPC endpoint and the retention sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophvault/internal/blobstore"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/device"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/sqlitedb"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"github.com/dmitrijs2005/gophvault/internal/vault/disguise"
	"github.com/dmitrijs2005/gophvault/internal/vault/engine"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"github.com/dmitrijs2005/gophvault/internal/vault/quota"
	"github.com/dmitrijs2005/gophvault/internal/vault/retention"
	"github.com/dmitrijs2005/gophvault/internal/vault/store"

	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	server  *gs.GRPCServer
	sweeper *retention.Sweeper
}

// openDatabase opens the configured database and brings its schema up to date.
func openDatabase(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	var (
		db  *sql.DB
		rm  repomanager.RepositoryManager
		err error
	)
	switch c.DatabaseDriver {
	case config.DriverSQLite:
		db, err = sqlitedb.Open(c.DatabaseDSN)
		rm = repomanager.NewSQLiteRepositoryManager()
	case config.DriverPostgres:
		db, err = sql.Open("pgx", c.DatabaseDSN)
		rm = repomanager.NewPostgresRepositoryManager()
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db migration error: %w", err)
	}
	return db, rm, nil
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobBackend {
	case config.BlobBackendFS:
		return blobstore.NewFSStore(c.BlobDir)
	case config.BlobBackendS3:
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
		})
	}
	return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
}

func ledgerConfig(c *config.Config) ledger.Config {
	cfg := ledger.Config{TierLimitsGB: make(map[models.Tier]int64, len(c.TierLimitsGB)), GracePeriod: c.GracePeriod}
	for tier, gb := range c.TierLimitsGB {
		cfg.TierLimitsGB[models.Tier(tier)] = gb
	}
	return cfg
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	mode, err := retention.ParseMode(c.RetentionMode)
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("blob storage init error: %w", err)
	}

	db, rm, err := openDatabase(ctx, c)
	if err != nil {
		return nil, err
	}

	lc := ledgerConfig(c)
	l := ledger.New(db, rm, lc, logger)
	q := quota.NewEnforcer(db, rm, lc.GracePeriod, logger)
	s := store.New(db, rm, blobs, logger)
	e := engine.New(cryptox.NewArgon2KeyProvider(), device.NewFileProvider(c.DeviceIDFile), disguise.NewNamer(s), s,
		engine.Config{ChunkSize: c.ChunkSize, Concurrency: c.EncryptConcurrency}, logger)

	srv, err := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, vault.New(l, q, e, s, logger), l, c.SecretKey)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sw := retention.NewSweeper(db, rm, s, q, l, retention.Policy{Mode: mode, Window: c.RetentionWindow}, logger)

	return &App{config: c, logger: logger, db: db, server: srv, sweeper: sw}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx, app.config.SweepInterval)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
