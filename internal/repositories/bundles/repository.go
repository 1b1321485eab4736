// Package bundles persists hidden bundle metadata. Ciphertext lives in the
// blob store; rows here only point at it.
package bundles

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Repository stores bundle metadata.
//
// Create returns *common.CollisionError when the disguised name is already
// taken on the same device. GetByID and Delete return common.ErrorNotFound
// for unknown ids.
type Repository interface {
	Create(ctx context.Context, b *models.HiddenFileBundle) error
	GetByID(ctx context.Context, id string) (*models.HiddenFileBundle, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*models.HiddenFileBundle, error)
	DisguisedNameExists(ctx context.Context, deviceFingerprint, name string) (bool, error)
	TotalSizeByUser(ctx context.Context, userID string) (int64, error)
}
