// Package subscriptions persists vault subscriptions and performs the atomic
// quota reservation against them.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Repository stores subscriptions. Rows are never deleted.
type Repository interface {
	Create(ctx context.Context, s *models.VaultSubscription) error
	GetByID(ctx context.Context, id string) (*models.VaultSubscription, error)
	// GetLatestByUser returns the user's open subscription, or the most
	// recently purchased one when all of them are cancelled. This row carries
	// the user's storage usage.
	GetLatestByUser(ctx context.Context, userID string) (*models.VaultSubscription, error)
	// GetLatestByUserForUpdate is GetLatestByUser with a row lock where the
	// database supports it.
	GetLatestByUserForUpdate(ctx context.Context, userID string) (*models.VaultSubscription, error)

	// Reserve adds incoming bytes to the usage of the user's open subscription
	// in one conditional statement. It returns common.ErrReservationRejected
	// when the subscription is not active at now or the limit would be exceeded.
	Reserve(ctx context.Context, userID string, incoming int64, now time.Time) (*models.VaultSubscription, error)
	SetUsage(ctx context.Context, id string, used int64) error

	UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error
	UpdateTier(ctx context.Context, id string, tier models.Tier, limitGB int64) error
	UpdatePeriod(ctx context.Context, id string, expiresAt time.Time, graceEndsAt *time.Time, status models.SubscriptionStatus) error
	Cancel(ctx context.Context, id string, at time.Time) error
	// CancelOpenByUser cancels every non-cancelled subscription of the user.
	CancelOpenByUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// ListLapseCandidates returns the latest subscription of every user whose
	// period ended or who cancelled before the given moment.
	ListLapseCandidates(ctx context.Context, before time.Time) ([]*models.VaultSubscription, error)
}

const maxLockAttempts = 3

// LockLatestByUser locks the row returned by GetLatestByUser inside a
// transaction. A row superseded while waiting for its lock is skipped and the
// new latest row is locked instead.
func LockLatestByUser(ctx context.Context, r Repository, userID string) (*models.VaultSubscription, error) {
	for range maxLockAttempts {
		locked, err := r.GetLatestByUserForUpdate(ctx, userID)
		if err != nil {
			return nil, err
		}
		latest, err := r.GetLatestByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if latest.ID == locked.ID {
			return locked, nil
		}
	}
	return nil, fmt.Errorf("subscription of user %s changed %d times while locking", userID, maxLockAttempts)
}
