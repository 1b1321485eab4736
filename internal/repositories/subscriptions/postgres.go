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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgColumns = `id, user_id, tier, storage_limit_gb, storage_used_bytes, receipt_mode, receipt_label,
		    status, subscribed_at, expires_at, grace_period_ends_at, cancelled_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPostgres(s scanner) (*models.VaultSubscription, error) {
	sub := &models.VaultSubscription{}
	var (
		tier, status string
		limitGB      int64
		grace        sql.NullTime
		cancelled    sql.NullTime
	)
	if err := s.Scan(&sub.ID, &sub.UserID, &tier, &limitGB, &sub.StorageUsedBytes, &sub.ReceiptMode,
		&sub.ReceiptLabel, &status, &sub.SubscribedAt, &sub.ExpiresAt, &grace, &cancelled); err != nil {
		return nil, err
	}
	sub.Tier = models.Tier(tier)
	sub.Status = models.SubscriptionStatus(status)
	sub.StorageLimitBytes = limitGB * common.GiB
	if grace.Valid {
		t := grace.Time
		sub.GracePeriodEndsAt = &t
	}
	if cancelled.Valid {
		t := cancelled.Time
		sub.CancelledAt = &t
	}
	return sub, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.VaultSubscription) error {
	query :=
		`INSERT INTO vault_subscriptions (` + pgColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 `

	_, err := r.db.ExecContext(ctx, query, s.ID, s.UserID, string(s.Tier), s.StorageLimitBytes/common.GiB,
		s.StorageUsedBytes, s.ReceiptMode, s.ReceiptLabel, string(s.Status), s.SubscribedAt, s.ExpiresAt,
		s.GracePeriodEndsAt, s.CancelledAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.VaultSubscription, error) {
	sub, err := scanPostgres(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.VaultSubscription, error) {
	return r.getOne(ctx, `SELECT `+pgColumns+` FROM vault_subscriptions WHERE id = $1`, id)
}

const pgLatestByUser = `SELECT ` + pgColumns + ` FROM vault_subscriptions
		 WHERE user_id = $1
		 ORDER BY status = 'cancelled', subscribed_at DESC, id DESC
		 LIMIT 1`

func (r *PostgresRepository) GetLatestByUser(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	return r.getOne(ctx, pgLatestByUser, userID)
}

func (r *PostgresRepository) GetLatestByUserForUpdate(ctx context.Context, userID string) (*models.VaultSubscription, error) {
	return r.getOne(ctx, pgLatestByUser+` FOR UPDATE`, userID)
}

func (r *PostgresRepository) Reserve(ctx context.Context, userID string, incoming int64, now time.Time) (*models.VaultSubscription, error) {
	query :=
		`UPDATE vault_subscriptions
		 SET storage_used_bytes = storage_used_bytes + $2
		 WHERE user_id = $1
		   AND status = 'active'
		   AND expires_at > $3
		   AND storage_used_bytes + $2 <= storage_limit_gb * 1073741824
		 RETURNING ` + pgColumns

	sub, err := scanPostgres(r.db.QueryRowContext(ctx, query, userID, incoming, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrReservationRejected
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetUsage(ctx context.Context, id string, used int64) error {
	return r.exec(ctx, `UPDATE vault_subscriptions SET storage_used_bytes = $2 WHERE id = $1`, id, used)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	return r.exec(ctx, `UPDATE vault_subscriptions SET status = $2 WHERE id = $1`, id, string(status))
}

func (r *PostgresRepository) UpdateTier(ctx context.Context, id string, tier models.Tier, limitGB int64) error {
	return r.exec(ctx, `UPDATE vault_subscriptions SET tier = $2, storage_limit_gb = $3 WHERE id = $1`,
		id, string(tier), limitGB)
}

func (r *PostgresRepository) UpdatePeriod(ctx context.Context, id string, expiresAt time.Time, graceEndsAt *time.Time, status models.SubscriptionStatus) error {
	return r.exec(ctx, `UPDATE vault_subscriptions SET expires_at = $2, grace_period_ends_at = $3, status = $4 WHERE id = $1`,
		id, expiresAt, graceEndsAt, string(status))
}

func (r *PostgresRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE vault_subscriptions SET status = 'cancelled', cancelled_at = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) CancelOpenByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query :=
		`UPDATE vault_subscriptions SET status = 'cancelled', cancelled_at = $2
		 WHERE user_id = $1 AND status <> 'cancelled'`

	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListLapseCandidates(ctx context.Context, before time.Time) ([]*models.VaultSubscription, error) {
	query :=
		`SELECT ` + pgColumns + ` FROM vault_subscriptions s
		 WHERE NOT EXISTS (
		     SELECT 1 FROM vault_subscriptions n
		     WHERE n.user_id = s.user_id AND n.subscribed_at > s.subscribed_at)
		   AND ((s.status = 'cancelled' AND s.cancelled_at < $1)
		     OR (s.status <> 'cancelled' AND s.expires_at < $1))
		 ORDER BY s.user_id`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultSubscription
	for rows.Next() {
		sub, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
