package bundles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, b *models.HiddenFileBundle) error {
	query :=
		`INSERT INTO hidden_bundles (file_id, user_id, encrypted_name, disguised_name, disguise_type,
		    file_size_bytes, file_count, device_fingerprint, blob_ref, kdf_salt, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 `

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.EncryptedName, b.DisguisedName, string(b.DisguiseType),
		b.TotalSizeBytes, b.FileCount, b.DeviceFingerprint, b.BlobRef, b.KDFSalt, b.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return &common.CollisionError{Name: b.DisguisedName}
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.HiddenFileBundle, error) {
	query :=
		`SELECT file_id, user_id, encrypted_name, disguised_name, disguise_type, file_size_bytes,
		    file_count, device_fingerprint, blob_ref, kdf_salt, created_at
		 FROM hidden_bundles
		 WHERE file_id = $1
		 `

	b := &models.HiddenFileBundle{}
	var disguiseType string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.UserID, &b.EncryptedName, &b.DisguisedName,
		&disguiseType, &b.TotalSizeBytes, &b.FileCount, &b.DeviceFingerprint, &b.BlobRef, &b.KDFSalt, &b.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	b.DisguiseType = models.DisguiseType(disguiseType)

	return b, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM hidden_bundles WHERE file_id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
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

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.HiddenFileBundle, error) {
	query :=
		`SELECT file_id, user_id, encrypted_name, disguised_name, disguise_type, file_size_bytes,
		    file_count, device_fingerprint, blob_ref, kdf_salt, created_at
		 FROM hidden_bundles
		 WHERE user_id = $1
		 ORDER BY created_at, file_id
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.HiddenFileBundle
	for rows.Next() {
		b := &models.HiddenFileBundle{}
		var disguiseType string
		if err := rows.Scan(&b.ID, &b.UserID, &b.EncryptedName, &b.DisguisedName, &disguiseType,
			&b.TotalSizeBytes, &b.FileCount, &b.DeviceFingerprint, &b.BlobRef, &b.KDFSalt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		b.DisguiseType = models.DisguiseType(disguiseType)
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DisguisedNameExists(ctx context.Context, deviceFingerprint, name string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM hidden_bundles WHERE device_fingerprint = $1 AND disguised_name = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, deviceFingerprint, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) TotalSizeByUser(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(file_size_bytes), 0) FROM hidden_bundles WHERE user_id = $1`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}
