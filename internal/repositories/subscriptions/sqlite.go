package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
// Timestamps are stored as unix microseconds so that comparisons in SQL are
// plain integer comparisons.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteColumns = `id, user_id, tier, storage_limit_gb, storage_used_bytes, receipt_mode, receipt_label,
	status, subscribed_at, expires_at, grace_period_ends_at, cancelled_at`

func toMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func toNullMicro(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicro(*t), Valid: true}
}

func fromNullMicro(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMicro(v.Int64).UTC()
	return &t
}

func scanSQLite(s scanner) (*models.VaultSubscription, error) {
	sub := &models.VaultSubscription{}
	var (
		tier, status        string
		limitGB             int64
		subscribed, expires int64
		grace, cancelled    sql.NullInt64
	)
	if err := s.Scan(&sub.ID, &sub.UserID, &tier, &limitGB, &sub.StorageUsedBytes, &sub.ReceiptMode,
		&sub.ReceiptLabel, &status, &subscribed, &expires, &grace, &cancelled); err != nil {
		return nil, err
	}
	sub.Tier = models.Tier(tier)
	sub.Status = models.SubscriptionStatus(status)
	sub.StorageLimitBytes = limitGB * common.GiB
	sub.SubscribedAt = time.UnixMicro(subscribed).UTC()
	sub.ExpiresAt = time.UnixMicro(expires).UTC()
	sub.GracePeriodEndsAt = fromNullMicro(grace)
	sub.CancelledAt = fromNullMicro(cancelled)
	return sub, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, s *models.VaultSubscription) error {
	query := `INSERT INTO vault_subscriptions (` + sqliteColumns + `)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, s.ID, s.UserID, string(s.Tier), s.StorageLimitBytes/common.GiB,
		s.StorageUsedBytes, s.ReceiptMode, s.ReceiptLabel, string(s.Status), toMicro(s.SubscribedAt),
		toMicro(s.ExpiresAt), toNullMicro(s.GracePeriodEndsAt), toNullMicro(s.CancelledAt))
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, args ...any) (*models.VaultSubscription, error) {
	sub, err := scanSQLite(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return sub, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.VaultSubscription, error) {
	return r.getOne(ctx, `select `+sqliteColumns+` from vault_subscriptions where id=?`, id)
}

func (r *SQLiteRepository) GetLatestByUser(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	return r.getOne(ctx, `select `+sqliteColumns+` from vault_subscriptions
			where user_id=? order by status = 'cancelled', subscribed_at desc, id desc limit 1`, userID)
}

// GetLatestByUserForUpdate is GetLatestByUser: SQLite locks the whole
// database for the duration of a write transaction.
func (r *SQLiteRepository) GetLatestByUserForUpdate(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	return r.GetLatestByUser(ctx, userID)
}

func (r *SQLiteRepository) Reserve(ctx context.Context, userID string, incoming int64, now time.Time) (*models.VaultSubscription, error) {
	query := `update vault_subscriptions
			set storage_used_bytes = storage_used_bytes + ?1
			where user_id = ?2
			  and status = 'active'
			  and expires_at > ?3
			  and storage_used_bytes + ?1 <= storage_limit_gb * 1073741824
			returning ` + sqliteColumns

	sub, err := scanSQLite(r.db.QueryRowContext(ctx, query, incoming, userID, toMicro(now)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrReservationRejected
		}
		return nil, fmt.Errorf("failed to reserve storage: %w", err)
	}
	return sub, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetUsage(ctx context.Context, id string, used int64) error {
	return r.exec(ctx, `update vault_subscriptions set storage_used_bytes=? where id=?`, used, id)
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	return r.exec(ctx, `update vault_subscriptions set status=? where id=?`, string(status), id)
}

func (r *SQLiteRepository) UpdateTier(ctx context.Context, id string, tier models.Tier, limitGB int64) error {
	return r.exec(ctx, `update vault_subscriptions set tier=?, storage_limit_gb=? where id=?`, string(tier), limitGB, id)
}

func (r *SQLiteRepository) UpdatePeriod(ctx context.Context, id string, expiresAt time.Time, graceEndsAt *time.Time, status models.SubscriptionStatus) error {
	return r.exec(ctx, `update vault_subscriptions set expires_at=?, grace_period_ends_at=?, status=? where id=?`,
		toMicro(expiresAt), toNullMicro(graceEndsAt), string(status), id)
}

func (r *SQLiteRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `update vault_subscriptions set status='cancelled', cancelled_at=? where id=?`, toMicro(at), id)
}

func (r *SQLiteRepository) CancelOpenByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`update vault_subscriptions set status='cancelled', cancelled_at=? where user_id=? and status<>'cancelled'`,
		toMicro(at), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel subscriptions: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra, nil
}

func (r *SQLiteRepository) ListLapseCandidates(ctx context.Context, before time.Time) ([]*models.VaultSubscription, error) {
	query := `select ` + sqliteColumns + ` from vault_subscriptions s
			where not exists (
				select 1 from vault_subscriptions n
				where n.user_id = s.user_id and n.subscribed_at > s.subscribed_at)
			  and ((s.status = 'cancelled' and s.cancelled_at < ?1)
				or (s.status <> 'cancelled' and s.expires_at < ?1))
			order by s.user_id`

	rows, err := r.db.QueryContext(ctx, query, toMicro(before))
	if err != nil {
		return nil, fmt.Errorf("failed to select subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultSubscription
	for rows.Next() {
		sub, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
