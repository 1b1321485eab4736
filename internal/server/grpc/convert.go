package grpc

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"google.golang.org/protobuf/types/known/structpb"
)

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := stringField(req, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", common.ErrorValidation, key)
	}
	return v, nil
}

func bytesField(req *structpb.Struct, key string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(stringField(req, key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64", common.ErrorValidation, key)
	}
	return b, nil
}

func timeField(req *structpb.Struct, key string) (*time.Time, error) {
	v := stringField(req, key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not an RFC 3339 time", common.ErrorValidation, key)
	}
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func bundleValue(b *models.HiddenFileBundle) map[string]any {
	m := map[string]any{
		"id":             b.ID,
		"disguised_name": b.DisguisedName,
		"disguise_type":  string(b.DisguiseType),
		"disguise_mime":  b.DisguiseMimeType,
		"size_bytes":     b.TotalSizeBytes,
		"file_count":     b.FileCount,
		"created_at":     formatTime(b.CreatedAt),
	}
	if b.RealName != "" {
		m["name"] = b.RealName
	}
	if len(b.Files) > 0 {
		files := make([]any, len(b.Files))
		for i, f := range b.Files {
			files[i] = map[string]any{"name": f.Name, "mime_type": f.MimeType, "size_bytes": f.Size}
		}
		m["files"] = files
	}
	return m
}

func subscriptionValue(s *models.VaultSubscription) map[string]any {
	m := map[string]any{
		"id":                  s.ID,
		"tier":                string(s.Tier),
		"status":              string(s.Status),
		"storage_limit_bytes": s.StorageLimitBytes,
		"storage_used_bytes":  s.StorageUsedBytes,
		"subscribed_at":       formatTime(s.SubscribedAt),
		"expires_at":          formatTime(s.ExpiresAt),
	}
	if s.GracePeriodEndsAt != nil {
		m["grace_period_ends_at"] = formatTime(*s.GracePeriodEndsAt)
	}
	if s.CancelledAt != nil {
		m["cancelled_at"] = formatTime(*s.CancelledAt)
	}
	return m
}

func statusValue(st *vault.Status) map[string]any {
	m := map[string]any{
		"bundle_count": st.BundleCount,
		"stored_bytes": st.StoredBytes,
	}
	if st.Subscription != nil {
		m["subscription"] = subscriptionValue(st.Subscription)
	}
	return m
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return s, nil
}
