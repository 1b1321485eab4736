package ledger

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
	"github.com/google/uuid"
)

// Config holds the plan catalogue.
type Config struct {
	TierLimitsGB map[models.Tier]int64
	GracePeriod  time.Duration
}

// DefaultConfig returns the standard plans: basic 5 GiB, pro 12 GiB, gold 50 GiB.
func DefaultConfig() Config {
	return Config{
		TierLimitsGB: map[models.Tier]int64{
			models.TierBasic: 5,
			models.TierPro:   12,
			models.TierGold:  50,
		},
		GracePeriod: DefaultGracePeriod,
	}
}

// PurchaseRequest is a billing event for a new period.
type PurchaseRequest struct {
	UserID            string
	Tier              models.Tier
	ExpiresAt         time.Time
	GracePeriodEndsAt *time.Time
	ReceiptMode       string
	ReceiptLabel      string
}

// Ledger reads subscriptions and applies billing events to them.
type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cfg         Config
	log         logging.Logger
	now         func() time.Time
}

func New(db *sql.DB, m repomanager.RepositoryManager, cfg Config, log logging.Logger) *Ledger {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.TierLimitsGB == nil {
		cfg.TierLimitsGB = DefaultConfig().TierLimitsGB
	}
	return &Ledger{
		db:          db,
		repomanager: m,
		cfg:         cfg,
		log:         log.With("module", "ledger"),
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

func (l *Ledger) GracePeriod() time.Duration {
	return l.cfg.GracePeriod
}

// LimitBytes returns the storage limit of tier.
func (l *Ledger) LimitBytes(tier models.Tier) (int64, error) {
	gb, ok := l.cfg.TierLimitsGB[tier]
	if !ok || !tier.Valid() {
		return 0, fmt.Errorf("%w: unknown tier %q", common.ErrorValidation, tier)
	}
	return gb * common.GiB, nil
}

// Recompute is the package Recompute with the ledger's grace period.
func (l *Ledger) Recompute(sub *models.VaultSubscription, now time.Time) models.SubscriptionStatus {
	return Recompute(sub, now, l.cfg.GracePeriod)
}

// CheckAccess is the package CheckAccess at the ledger's current time.
func (l *Ledger) CheckAccess(sub *models.VaultSubscription, capability models.Capability) error {
	return CheckAccess(sub, capability, l.now(), l.cfg.GracePeriod)
}

// Current returns the latest subscription of userID with its status
// recomputed. The recomputed status is not persisted.
func (l *Ledger) Current(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	sub, err := l.repomanager.Subscriptions(l.db).GetLatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub.Status = l.Recompute(sub, l.now())
	return sub, nil
}

// Authorize loads the current subscription and checks capability against it.
// Users without any subscription get *common.SubscriptionInactiveError.
func (l *Ledger) Authorize(ctx context.Context, userID string, capability models.Capability) (*models.VaultSubscription, error) {
	sub, err := l.Current(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, &common.SubscriptionInactiveError{Status: "none", Remediation: RemediationFor("")}
		}
		return nil, err
	}
	if err := l.CheckAccess(sub, capability); err != nil {
		return sub, err
	}
	return sub, nil
}

// Refresh persists the recomputed status of the user's latest subscription.
func (l *Ledger) Refresh(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	repo := l.repomanager.Subscriptions(l.db)

	sub, err := repo.GetLatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := l.Recompute(sub, l.now())
	if status != sub.Status {
		if err := repo.UpdateStatus(ctx, sub.ID, status); err != nil {
			return nil, fmt.Errorf("error updating subscription status: %w", err)
		}
		l.log.Info(ctx, "subscription status changed", "subscription_id", sub.ID, "from", sub.Status, "to", status)
		sub.Status = status
	}
	return sub, nil
}

// Purchase starts a new billing period. Earlier open subscriptions of the
// user are cancelled and the storage already in use is carried over.
func (l *Ledger) Purchase(ctx context.Context, req PurchaseRequest) (*models.VaultSubscription, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: empty user id", common.ErrorValidation)
	}
	limit, err := l.LimitBytes(req.Tier)
	if err != nil {
		return nil, err
	}
	now := l.now()
	if !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", common.ErrorValidation)
	}
	if req.GracePeriodEndsAt != nil && req.GracePeriodEndsAt.Before(req.ExpiresAt) {
		return nil, fmt.Errorf("%w: grace period must end after expiry", common.ErrorValidation)
	}

	sub := &models.VaultSubscription{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Tier:              req.Tier,
		StorageLimitBytes: limit,
		Status:            models.StatusActive,
		ReceiptMode:       req.ReceiptMode,
		ReceiptLabel:      req.ReceiptLabel,
		SubscribedAt:      now,
		ExpiresAt:         req.ExpiresAt,
		GracePeriodEndsAt: req.GracePeriodEndsAt,
	}

	err = dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := l.repomanager.Subscriptions(tx)

		prev, err := subscriptions.LockLatestByUser(ctx, repo, req.UserID)
		switch {
		case err == nil:
			sub.StorageUsedBytes = prev.StorageUsedBytes
		case errors.Is(err, common.ErrorNotFound):
		default:
			return fmt.Errorf("error loading previous subscription: %w", err)
		}

		if _, err := repo.CancelOpenByUser(ctx, req.UserID, now); err != nil {
			return fmt.Errorf("error superseding subscriptions: %w", err)
		}
		if err := repo.Create(ctx, sub); err != nil {
			return fmt.Errorf("error creating subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info(ctx, "subscription purchased", "subscription_id", sub.ID, "user_id", sub.UserID, "tier", sub.Tier)
	return sub, nil
}

// latestOpen returns the user's latest subscription, rejecting cancelled ones.
func (l *Ledger) latestOpen(ctx context.Context, repo subscriptions.Repository, userID string) (*models.VaultSubscription, error) {
	sub, err := repo.GetLatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.StatusCancelled {
		return nil, &common.SubscriptionInactiveError{
			Status:      string(models.StatusCancelled),
			Remediation: RemediationFor(models.StatusCancelled),
		}
	}
	return sub, nil
}

// ChangeTier moves the user's open subscription to another plan. A limit
// below current usage is allowed; it only blocks further uploads.
func (l *Ledger) ChangeTier(ctx context.Context, userID string, tier models.Tier) (*models.VaultSubscription, error) {
	limit, err := l.LimitBytes(tier)
	if err != nil {
		return nil, err
	}

	repo := l.repomanager.Subscriptions(l.db)
	sub, err := l.latestOpen(ctx, repo, userID)
	if err != nil {
		return nil, err
	}

	if err := repo.UpdateTier(ctx, sub.ID, tier, limit/common.GiB); err != nil {
		return nil, fmt.Errorf("error changing tier: %w", err)
	}
	l.log.Info(ctx, "subscription tier changed", "subscription_id", sub.ID, "from", sub.Tier, "to", tier)

	sub.Tier = tier
	sub.StorageLimitBytes = limit
	sub.Status = l.Recompute(sub, l.now())
	return sub, nil
}

// Renew extends the user's subscription to newExpiresAt and clears any
// explicit grace end. Cancelled subscriptions cannot be renewed.
func (l *Ledger) Renew(ctx context.Context, userID string, newExpiresAt time.Time) (*models.VaultSubscription, error) {
	now := l.now()
	if !newExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", common.ErrorValidation)
	}

	repo := l.repomanager.Subscriptions(l.db)
	sub, err := l.latestOpen(ctx, repo, userID)
	if err != nil {
		return nil, err
	}

	sub.ExpiresAt = newExpiresAt
	sub.GracePeriodEndsAt = nil
	sub.Status = l.Recompute(sub, now)

	if err := repo.UpdatePeriod(ctx, sub.ID, sub.ExpiresAt, nil, sub.Status); err != nil {
		return nil, fmt.Errorf("error renewing subscription: %w", err)
	}
	l.log.Info(ctx, "subscription renewed", "subscription_id", sub.ID, "expires_at", newExpiresAt)
	return sub, nil
}

// Cancel ends the user's subscription. Cancelling twice is a no-op.
func (l *Ledger) Cancel(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	repo := l.repomanager.Subscriptions(l.db)

	sub, err := repo.GetLatestByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.StatusCancelled {
		return sub, nil
	}

	now := l.now()
	if err := repo.Cancel(ctx, sub.ID, now); err != nil {
		return nil, fmt.Errorf("error cancelling subscription: %w", err)
	}
	l.log.Info(ctx, "subscription cancelled", "subscription_id", sub.ID)

	sub.Status = models.StatusCancelled
	sub.CancelledAt = &now
	return sub, nil
}
