// Package store persists hidden bundles: ciphertext in the blob store under
// the disguised name, metadata in the database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/blobstore"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/vault/disguise"
	"github.com/sethvargo/go-retry"
)

const (
	retryBase = 50 * time.Millisecond
	retryMax  = 3
)

// Store is the single persistence entry point for bundles.
type Store struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	log         logging.Logger
	backoff     func() retry.Backoff
}

func New(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.Store, log logging.Logger) *Store {
	return &Store{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		log:         log.With("module", "store"),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(retryMax, retry.NewExponential(retryBase))
		},
	}
}

// blobIO runs op with exponential backoff. A missing blob or a cancelled
// context is not retried.
func (s *Store) blobIO(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, blobstore.ErrNotFound) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &common.StorageIOError{Op: op, Err: err}
}

// Persist stores a bundle atomically. The metadata row is inserted in a
// transaction that only commits once the blob is written, so a disguised name
// already used on the device fails with *common.CollisionError before any
// existing blob could be overwritten. A failed commit removes the new blob.
func (s *Store) Persist(ctx context.Context, b *models.HiddenFileBundle, blob []byte) error {
	if b.BlobRef == "" {
		b.BlobRef = b.DisguisedName
	}

	var written bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Bundles(tx).Create(ctx, b); err != nil {
			var collision *common.CollisionError
			if errors.As(err, &collision) {
				return err
			}
			return &common.StorageIOError{Op: "insert metadata", Err: err}
		}

		if err := s.blobIO(ctx, "write blob", func(ctx context.Context) error {
			return s.blobs.Put(ctx, b.BlobRef, blob)
		}); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err == nil {
		return nil
	}

	if written {
		// the caller's ctx may already be done; the cleanup must still run
		if derr := s.blobIO(context.WithoutCancel(ctx), "remove blob", func(ctx context.Context) error {
			return s.blobs.Delete(ctx, b.BlobRef)
		}); derr != nil {
			s.log.Error(ctx, "orphan blob after failed commit", "bundle_id", b.ID, "error", derr)
		}
	}

	var (
		collision *common.CollisionError
		sio       *common.StorageIOError
	)
	if errors.As(err, &collision) || errors.As(err, &sio) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &common.StorageIOError{Op: "commit metadata", Err: err}
}

func (s *Store) load(ctx context.Context, bundleID string) (*models.HiddenFileBundle, error) {
	b, err := s.repomanager.Bundles(s.db).GetByID(ctx, bundleID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, &common.StorageIOError{Op: "read metadata", Err: err}
	}
	b.DisguiseMimeType = disguise.MimeType(b.DisguiseType)
	return b, nil
}

func (s *Store) checkDevice(ctx context.Context, b *models.HiddenFileBundle, fingerprint string) error {
	if b.DeviceFingerprint == fingerprint {
		return nil
	}
	s.log.Error(ctx, "bundle accessed from another device",
		"bundle_id", b.ID,
		"origin_device", cryptox.FingerprintHash(b.DeviceFingerprint),
		"current_device", cryptox.FingerprintHash(fingerprint))
	return &common.DeviceMismatchError{BundleID: b.ID}
}

// Get returns bundle metadata without touching the blob.
func (s *Store) Get(ctx context.Context, bundleID string) (*models.HiddenFileBundle, error) {
	return s.load(ctx, bundleID)
}

// Fetch returns metadata and ciphertext of a bundle. The device check runs
// before any ciphertext is read.
func (s *Store) Fetch(ctx context.Context, bundleID, fingerprint string) (*models.HiddenFileBundle, []byte, error) {
	b, err := s.load(ctx, bundleID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkDevice(ctx, b, fingerprint); err != nil {
		return nil, nil, err
	}

	var blob []byte
	if err := s.blobIO(ctx, "read blob", func(ctx context.Context) error {
		var err error
		blob, err = s.blobs.Get(ctx, b.BlobRef)
		return err
	}); err != nil {
		return nil, nil, err
	}
	return b, blob, nil
}

// Delete removes a bundle owned by the current device and returns its
// metadata. The row goes first; a blob that cannot be removed is logged and
// never brings the row back.
func (s *Store) Delete(ctx context.Context, bundleID, fingerprint string) (*models.HiddenFileBundle, error) {
	b, err := s.load(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDevice(ctx, b, fingerprint); err != nil {
		return nil, err
	}
	return b, s.remove(ctx, b)
}

// Purge removes a bundle without a device check. Only the retention sweeper
// uses it.
func (s *Store) Purge(ctx context.Context, bundleID string) (*models.HiddenFileBundle, error) {
	b, err := s.load(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	return b, s.remove(ctx, b)
}

func (s *Store) remove(ctx context.Context, b *models.HiddenFileBundle) error {
	if err := s.repomanager.Bundles(s.db).Delete(ctx, b.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return &common.StorageIOError{Op: "delete metadata", Err: err}
	}

	if err := s.blobIO(context.WithoutCancel(ctx), "remove blob", func(ctx context.Context) error {
		return s.blobs.Delete(ctx, b.BlobRef)
	}); err != nil {
		s.log.Error(ctx, "orphan blob after delete", "bundle_id", b.ID, "error", err)
	}
	return nil
}

// ListForUser returns bundle metadata. Real names stay encrypted.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*models.HiddenFileBundle, error) {
	list, err := s.repomanager.Bundles(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, &common.StorageIOError{Op: "list metadata", Err: err}
	}
	for _, b := range list {
		b.DisguiseMimeType = disguise.MimeType(b.DisguiseType)
	}
	return list, nil
}

// DisguisedNameExists makes Store a disguise.NameChecker.
func (s *Store) DisguisedNameExists(ctx context.Context, deviceFingerprint, name string) (bool, error) {
	return s.repomanager.Bundles(s.db).DisguisedNameExists(ctx, deviceFingerprint, name)
}

// TotalSizeForUser sums the sizes of all stored bundles of a user.
func (s *Store) TotalSizeForUser(ctx context.Context, userID string) (int64, error) {
	total, err := s.repomanager.Bundles(s.db).TotalSizeByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error summing bundle sizes: %w", err)
	}
	return total, nil
}
