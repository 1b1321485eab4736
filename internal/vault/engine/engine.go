// Package engine encrypts file bundles on the device and decrypts them again.
//
// A bundle is one blob: a magic header, an encrypted manifest frame and the
// chunk frames of every file. Each file has its own HKDF sub-key of the bundle
// key, which is derived from the device fingerprint and the user's PIN.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/device"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault/disguise"
	"github.com/dmitrijs2005/gophvault/internal/vault/store"
)

// DefaultChunkSize is the plaintext size of one frame.
const DefaultChunkSize = 64 * 1024

// Config tunes the engine.
type Config struct {
	ChunkSize   int
	Concurrency int
}

// Engine runs hide, reveal and delete for bundles of the current device.
type Engine struct {
	keys   cryptox.KeyProvider
	device device.Provider
	namer  *disguise.Namer
	store  *store.Store
	log    logging.Logger
	cfg    Config
	locks  *keyedLocks
	now    func() time.Time
}

func New(keys cryptox.KeyProvider, dev device.Provider, namer *disguise.Namer, st *store.Store, cfg Config, log logging.Logger) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	return &Engine{
		keys:   keys,
		device: dev,
		namer:  namer,
		store:  st,
		log:    log.With("module", "engine"),
		cfg:    cfg,
		locks:  newKeyedLocks(),
		now:    time.Now,
	}
}

// Fingerprint returns the current device fingerprint.
func (e *Engine) Fingerprint(ctx context.Context) (string, error) {
	fp, err := e.device.Fingerprint(ctx)
	if err != nil {
		return "", fmt.Errorf("reading device fingerprint: %w", err)
	}
	return fp, nil
}

// owned loads bundle metadata and hides bundles of other users.
func (e *Engine) owned(ctx context.Context, userID, bundleID string) (*models.HiddenFileBundle, error) {
	b, err := e.store.Get(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return b, nil
}

// Delete removes a bundle of the current device and returns the number of
// bytes it occupied.
func (e *Engine) Delete(ctx context.Context, userID, bundleID string) (int64, error) {
	unlock := e.locks.Lock(bundleID)
	defer unlock()

	if _, err := e.owned(ctx, userID, bundleID); err != nil {
		return 0, err
	}
	fp, err := e.Fingerprint(ctx)
	if err != nil {
		return 0, err
	}

	b, err := e.store.Delete(ctx, bundleID, fp)
	if err != nil {
		return 0, err
	}
	e.log.Info(ctx, "bundle deleted", "bundle_id", b.ID, "size", b.TotalSizeBytes)
	return b.TotalSizeBytes, nil
}
