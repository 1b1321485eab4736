// Package vault ties the components together: every operation first asks the
// subscription ledger for access, hide reserves quota before encrypting, and
// delete releases it once the bundle is gone.
package vault

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault/engine"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"github.com/dmitrijs2005/gophvault/internal/vault/quota"
	"github.com/dmitrijs2005/gophvault/internal/vault/store"
)

type Vault struct {
	ledger *ledger.Ledger
	quota  *quota.Enforcer
	engine *engine.Engine
	store  *store.Store
	log    logging.Logger
}

func New(l *ledger.Ledger, q *quota.Enforcer, e *engine.Engine, s *store.Store, log logging.Logger) *Vault {
	return &Vault{ledger: l, quota: q, engine: e, store: s, log: log.With("module", "vault")}
}

// Status is the storage summary of a user.
type Status struct {
	Subscription *models.VaultSubscription
	BundleCount  int
	StoredBytes  int64
}

// Hide stores files as one disguised, encrypted bundle. The declared sizes
// are reserved up front; the reservation is released if the hide does not
// complete. Usage is tracked per user, so a purchase landing in between
// does not strand the reservation on the superseded subscription.
func (v *Vault) Hide(ctx context.Context, req engine.HideRequest) (*models.HiddenFileBundle, error) {
	if _, err := v.ledger.Authorize(ctx, req.UserID, models.CapabilityUpload); err != nil {
		return nil, err
	}

	total := req.TotalSize()
	if _, err := v.quota.Reserve(ctx, req.UserID, total); err != nil {
		return nil, err
	}

	b, err := v.engine.Hide(ctx, req)
	if err != nil {
		if relErr := v.quota.Release(context.WithoutCancel(ctx), req.UserID, total); relErr != nil {
			v.log.Error(ctx, "failed to release reservation", "user_id", req.UserID, "bytes", total, "error", relErr)
		}
		v.logFailure(ctx, "hide failed", "", err)
		return nil, err
	}
	return b, nil
}

// Reveal decrypts a bundle of the current device.
func (v *Vault) Reveal(ctx context.Context, userID, bundleID string, pin []byte) (*models.HiddenFileBundle, []models.RevealedFile, error) {
	if _, err := v.ledger.Authorize(ctx, userID, models.CapabilityView); err != nil {
		return nil, nil, err
	}
	b, files, err := v.engine.Reveal(ctx, userID, bundleID, pin)
	if err != nil {
		v.logFailure(ctx, "reveal failed", bundleID, err)
		return nil, nil, err
	}
	return b, files, nil
}

// Delete removes a bundle and gives its bytes back to the quota.
func (v *Vault) Delete(ctx context.Context, userID, bundleID string) error {
	if _, err := v.ledger.Authorize(ctx, userID, models.CapabilityDelete); err != nil {
		return err
	}

	freed, err := v.engine.Delete(ctx, userID, bundleID)
	if err != nil {
		v.logFailure(ctx, "delete failed", bundleID, err)
		return err
	}

	if _, err := v.quota.UpdateUsage(context.WithoutCancel(ctx), userID, -freed); err != nil {
		v.log.Error(ctx, "bundle deleted but usage not updated", "bundle_id", bundleID, "user_id", userID, "error", err)
		return err
	}
	return nil
}

// List returns the bundles of a user. Real names stay encrypted.
func (v *Vault) List(ctx context.Context, userID string) ([]*models.HiddenFileBundle, error) {
	if _, err := v.ledger.Authorize(ctx, userID, models.CapabilityView); err != nil {
		return nil, err
	}
	return v.store.ListForUser(ctx, userID)
}

// Status reports the current subscription and what is stored under it.
func (v *Vault) Status(ctx context.Context, userID string) (*Status, error) {
	sub, err := v.ledger.Current(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	stored, err := v.store.TotalSizeForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	bundles, err := v.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{Subscription: sub, BundleCount: len(bundles), StoredBytes: stored}, nil
}

// logFailure logs errors that lose data or need attention. Expected
// outcomes such as a wrong PIN are left to the caller.
func (v *Vault) logFailure(ctx context.Context, msg, bundleID string, err error) {
	var (
		dm  *common.DeviceMismatchError
		enc *common.EncryptionError
		sio *common.StorageIOError
		col *common.CollisionError
	)
	if !errors.As(err, &dm) && !errors.As(err, &enc) && !errors.As(err, &sio) && !errors.As(err, &col) {
		return
	}

	device := "unknown"
	if fp, fpErr := v.engine.Fingerprint(ctx); fpErr == nil {
		device = cryptox.FingerprintHash(fp)
	}
	v.log.Error(ctx, msg, "bundle_id", bundleID, "device", device, "error", err)
}
