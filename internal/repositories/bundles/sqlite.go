package bundles

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
// Timestamps are stored as unix microseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteColumns = `file_id, user_id, encrypted_name, disguised_name, disguise_type, file_size_bytes,
	file_count, device_fingerprint, blob_ref, kdf_salt, created_at`

func (r *SQLiteRepository) Create(ctx context.Context, b *models.HiddenFileBundle) error {
	query := `INSERT INTO hidden_bundles (` + sqliteColumns + `)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.EncryptedName, b.DisguisedName, string(b.DisguiseType),
		b.TotalSizeBytes, b.FileCount, b.DeviceFingerprint, b.BlobRef, b.KDFSalt, b.CreatedAt.UTC().UnixMicro())
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return &common.CollisionError{Name: b.DisguisedName}
		}
		return fmt.Errorf("failed to insert bundle: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBundle(s scanner) (*models.HiddenFileBundle, error) {
	b := &models.HiddenFileBundle{}
	var disguiseType string
	var createdAt int64
	if err := s.Scan(&b.ID, &b.UserID, &b.EncryptedName, &b.DisguisedName, &disguiseType,
		&b.TotalSizeBytes, &b.FileCount, &b.DeviceFingerprint, &b.BlobRef, &b.KDFSalt, &createdAt); err != nil {
		return nil, err
	}
	b.DisguiseType = models.DisguiseType(disguiseType)
	b.CreatedAt = time.UnixMicro(createdAt).UTC()
	return b, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.HiddenFileBundle, error) {
	query := `select ` + sqliteColumns + ` from hidden_bundles where file_id=?`

	b, err := scanBundle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return b, nil
}

// Delete removes a bundle row. It expects exactly one row to be affected.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from hidden_bundles where file_id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
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

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]*models.HiddenFileBundle, error) {
	query := `select ` + sqliteColumns + ` from hidden_bundles where user_id=? order by created_at, file_id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select bundles: %w", err)
	}
	defer rows.Close()

	var result []*models.HiddenFileBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DisguisedNameExists(ctx context.Context, deviceFingerprint, name string) (bool, error) {
	query := `select count(*) from hidden_bundles where device_fingerprint=? and disguised_name=?`

	var n int
	if err := r.db.QueryRowContext(ctx, query, deviceFingerprint, name).Scan(&n); err != nil {
		return false, fmt.Errorf("query row scan failed: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) TotalSizeByUser(ctx context.Context, userID string) (int64, error) {
	query := `select coalesce(sum(file_size_bytes), 0) from hidden_bundles where user_id=?`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("query row scan failed: %w", err)
	}
	return total, nil
}
