package ledger

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now0 = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newLedger(t *testing.T) (*Ledger, *sql.DB, *clock) {
	t.Helper()
	db, err := sqlitedb.OpenMigrated(context.Background(), filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := &clock{t: now0}
	l := New(db, repomanager.NewSQLiteRepositoryManager(), DefaultConfig(), logging.Nop{})
	l.SetClock(c.Now)
	return l, db, c
}

func purchase(t *testing.T, l *Ledger, user string, tier models.Tier) *models.VaultSubscription {
	t.Helper()
	s, err := l.Purchase(context.Background(), PurchaseRequest{
		UserID: user, Tier: tier, ExpiresAt: l.Now().Add(30 * 24 * time.Hour), ReceiptMode: "store",
	})
	require.NoError(t, err)
	return s
}

func TestPurchase_CreatesActiveSubscription(t *testing.T) {
	l, _, _ := newLedger(t)

	s := purchase(t, l, "u-1", models.TierPro)
	assert.Equal(t, 12*common.GiB, s.StorageLimitBytes)
	assert.Equal(t, models.StatusActive, s.Status)

	cur, err := l.Current(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, cur.ID)
	assert.Equal(t, "store", cur.ReceiptMode)
}

func TestPurchase_Validation(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.Purchase(ctx, PurchaseRequest{UserID: "u-1", Tier: "platinum", ExpiresAt: now0.Add(time.Hour)})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = l.Purchase(ctx, PurchaseRequest{UserID: "u-1", Tier: models.TierBasic, ExpiresAt: now0})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = l.Purchase(ctx, PurchaseRequest{Tier: models.TierBasic, ExpiresAt: now0.Add(time.Hour)})
	assert.ErrorIs(t, err, common.ErrorValidation)

	early := now0.Add(time.Minute)
	_, err = l.Purchase(ctx, PurchaseRequest{UserID: "u-1", Tier: models.TierBasic, ExpiresAt: now0.Add(time.Hour), GracePeriodEndsAt: &early})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestPurchase_SupersedesAndCarriesUsage(t *testing.T) {
	l, db, c := newLedger(t)
	ctx := context.Background()

	first := purchase(t, l, "u-1", models.TierBasic)
	require.NoError(t, repomanager.NewSQLiteRepositoryManager().Subscriptions(db).SetUsage(ctx, first.ID, 1234))

	c.t = now0.Add(time.Hour)
	second := purchase(t, l, "u-1", models.TierGold)
	assert.Equal(t, int64(1234), second.StorageUsedBytes)

	old, err := repomanager.NewSQLiteRepositoryManager().Subscriptions(db).GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, old.Status)

	cur, err := l.Current(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)
	assert.Equal(t, models.TierGold, cur.Tier)
}

func TestCurrent_RecomputesWithoutPersisting(t *testing.T) {
	l, db, c := newLedger(t)
	ctx := context.Background()

	s := purchase(t, l, "u-1", models.TierPro)
	c.t = s.ExpiresAt.Add(time.Hour)

	cur, err := l.Current(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGracePeriod, cur.Status)

	stored, err := repomanager.NewSQLiteRepositoryManager().Subscriptions(db).GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)

	refreshed, err := l.Refresh(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGracePeriod, refreshed.Status)

	stored, err = repomanager.NewSQLiteRepositoryManager().Subscriptions(db).GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGracePeriod, stored.Status)

	// idempotent
	again, err := l.Refresh(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGracePeriod, again.Status)
}

func TestAuthorize(t *testing.T) {
	l, _, c := newLedger(t)
	ctx := context.Background()

	_, err := l.Authorize(ctx, "nobody", models.CapabilityView)
	var inactive *common.SubscriptionInactiveError
	require.True(t, errors.As(err, &inactive))
	assert.Equal(t, "none", inactive.Status)

	s := purchase(t, l, "u-1", models.TierPro)
	_, err = l.Authorize(ctx, "u-1", models.CapabilityUpload)
	require.NoError(t, err)

	c.t = s.ExpiresAt.Add(time.Hour)
	_, err = l.Authorize(ctx, "u-1", models.CapabilityUpload)
	require.True(t, errors.As(err, &inactive))
	assert.Equal(t, "grace_period", inactive.Status)

	_, err = l.Authorize(ctx, "u-1", models.CapabilityView)
	require.NoError(t, err)
}

func TestChangeTier(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	purchase(t, l, "u-1", models.TierPro)

	s, err := l.ChangeTier(ctx, "u-1", models.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, 5*common.GiB, s.StorageLimitBytes)

	cur, err := l.Current(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, cur.Tier)
	assert.Equal(t, 5*common.GiB, cur.StorageLimitBytes)

	_, err = l.ChangeTier(ctx, "u-1", "diamond")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = l.ChangeTier(ctx, "nobody", models.TierGold)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRenew(t *testing.T) {
	l, _, c := newLedger(t)
	ctx := context.Background()

	s := purchase(t, l, "u-1", models.TierPro)
	c.t = s.ExpiresAt.Add(24 * time.Hour)
	_, err := l.Refresh(ctx, "u-1")
	require.NoError(t, err)

	renewed, err := l.Renew(ctx, "u-1", c.t.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, renewed.Status)

	cur, err := l.Current(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, cur.Status)
	assert.Nil(t, cur.GracePeriodEndsAt)

	_, err = l.Renew(ctx, "u-1", c.t.Add(-time.Hour))
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestCancel_IsTerminal(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	purchase(t, l, "u-1", models.TierPro)

	s, err := l.Cancel(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, s.Status)
	require.NotNil(t, s.CancelledAt)

	again, err := l.Cancel(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, again.Status)

	var inactive *common.SubscriptionInactiveError
	_, err = l.Renew(ctx, "u-1", now0.Add(60*24*time.Hour))
	require.True(t, errors.As(err, &inactive))
	assert.Equal(t, "cancelled", inactive.Status)

	_, err = l.ChangeTier(ctx, "u-1", models.TierGold)
	require.True(t, errors.As(err, &inactive))

	_, err = l.Authorize(ctx, "u-1", models.CapabilityView)
	require.True(t, errors.As(err, &inactive))
}
