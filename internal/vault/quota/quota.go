// Package quota enforces per-user storage limits. Reservations are made in a
// single conditional update so concurrent uploads can never overshoot.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/repositories/subscriptions"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
)

// Decision is the outcome of a pure limit check.
type Decision struct {
	Allowed bool
	Reason  string
}

// CheckStorageLimit allows incoming bytes iff sub is active and the new total
// stays within the limit. It does not touch storage.
func CheckStorageLimit(sub *models.VaultSubscription, incoming int64) Decision {
	if sub.Status != models.StatusActive {
		return Decision{Reason: fmt.Sprintf("subscription is %s", sub.Status)}
	}
	if incoming < 0 {
		return Decision{Reason: "negative size"}
	}
	if sub.StorageUsedBytes+incoming > sub.StorageLimitBytes {
		return Decision{Reason: fmt.Sprintf("requires %d bytes, %d available", incoming, sub.AvailableBytes())}
	}
	return Decision{Allowed: true}
}

// Enforcer reserves and releases storage against a user's subscription.
type Enforcer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	grace       time.Duration
	now         func() time.Time
}

func NewEnforcer(db *sql.DB, m repomanager.RepositoryManager, grace time.Duration, log logging.Logger) *Enforcer {
	return &Enforcer{
		db:          db,
		repomanager: m,
		log:         log.With("module", "quota"),
		grace:       grace,
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (e *Enforcer) SetClock(now func() time.Time) {
	e.now = now
}

// Reserve atomically adds incoming bytes to the user's usage. When the
// reservation is rejected the subscription is reloaded and checked with
// CheckStorageLimit to report why: *common.QuotaExceededError or
// *common.SubscriptionInactiveError. A reload that would admit the bytes means
// the subscription changed under the update, so the reservation is retried
// once.
func (e *Enforcer) Reserve(ctx context.Context, userID string, incoming int64) (*models.VaultSubscription, error) {
	if incoming < 0 {
		return nil, fmt.Errorf("%w: negative size", common.ErrorValidation)
	}

	repo := e.repomanager.Subscriptions(e.db)

	for attempt := 0; ; attempt++ {
		now := e.now()

		sub, err := repo.Reserve(ctx, userID, incoming, now)
		if err == nil {
			e.log.Debug(ctx, "storage reserved", "subscription_id", sub.ID, "bytes", incoming, "used", sub.StorageUsedBytes)
			return sub, nil
		}
		if !errors.Is(err, common.ErrReservationRejected) {
			return nil, fmt.Errorf("error reserving storage: %w", err)
		}

		current, err := repo.GetLatestByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, &common.SubscriptionInactiveError{Status: "none", Remediation: ledger.RemediationFor("")}
			}
			return nil, fmt.Errorf("error loading subscription: %w", err)
		}

		status := ledger.Recompute(current, now, e.grace)
		if status == models.StatusActive && current.Status != models.StatusActive {
			status = current.Status
		}
		current.Status = status

		d := CheckStorageLimit(current, incoming)
		if d.Allowed {
			if attempt == 0 {
				continue
			}
			return nil, fmt.Errorf("error reserving storage: %w", common.ErrReservationRejected)
		}

		e.log.Debug(ctx, "reservation rejected", "subscription_id", current.ID, "bytes", incoming, "reason", d.Reason)
		if status != models.StatusActive {
			return nil, &common.SubscriptionInactiveError{Status: string(status), Remediation: ledger.RemediationFor(status)}
		}
		return nil, &common.QuotaExceededError{Required: incoming, Available: current.AvailableBytes()}
	}
}

// UpdateUsage applies delta to the user's storage usage. The subscription
// carrying the usage is locked for the update, so a purchase that moves the
// usage to a new subscription cannot lose it. A result below zero means the
// counter drifted from the stored bundles; it is clamped and logged.
func (e *Enforcer) UpdateUsage(ctx context.Context, userID string, delta int64) (int64, error) {
	var used int64
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := e.repomanager.Subscriptions(tx)

		sub, err := subscriptions.LockLatestByUser(ctx, repo, userID)
		if err != nil {
			return err
		}

		used = sub.StorageUsedBytes + delta
		if used < 0 {
			e.log.Warn(ctx, "storage usage would become negative, clamping",
				"subscription_id", sub.ID, "used", sub.StorageUsedBytes, "delta", delta)
			used = 0
		}
		return repo.SetUsage(ctx, sub.ID, used)
	})
	if err != nil {
		return 0, fmt.Errorf("error updating usage: %w", err)
	}
	return used, nil
}

// Release gives back a reservation that was not used.
func (e *Enforcer) Release(ctx context.Context, userID string, bytes int64) error {
	_, err := e.UpdateUsage(ctx, userID, -bytes)
	return err
}
