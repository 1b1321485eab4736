package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"device mismatch", &common.DeviceMismatchError{BundleID: "b"}, codes.FailedPrecondition},
		{"wrong pin", &common.WrongPinError{}, codes.PermissionDenied},
		{"quota", &common.QuotaExceededError{Required: 2, Available: 1}, codes.ResourceExhausted},
		{"inactive", &common.SubscriptionInactiveError{Status: "expired"}, codes.FailedPrecondition},
		{"not found", fmt.Errorf("loading: %w", common.ErrorNotFound), codes.NotFound},
		{"storage", &common.StorageIOError{Op: "read blob", Err: errors.New("disk")}, codes.Unavailable},
		{"collision", &common.CollisionError{Name: "x"}, codes.Aborted},
		{"validation", fmt.Errorf("%w: bad", common.ErrorValidation), codes.InvalidArgument},
		{"size mismatch", &common.EncryptionError{Err: fmt.Errorf("%w: short", common.ErrorValidation)}, codes.InvalidArgument},
		{"encryption", &common.EncryptionError{Err: errors.New("cipher")}, codes.Internal},
		{"cancelled", context.Canceled, codes.Canceled},
		{"unknown", errors.New("boom"), codes.Internal},
		{"already a status", status.Error(codes.Unauthenticated, "x"), codes.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(toStatus(tt.err)))
		})
	}

	assert.NoError(t, toStatus(nil))
}

func TestToStatus_HidesInternalDetails(t *testing.T) {
	err := toStatus(&common.StorageIOError{Op: "read blob", Err: errors.New("/var/lib/secret/path")})
	assert.NotContains(t, status.Convert(err).Message(), "/var/lib")

	err = toStatus(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal error", status.Convert(err).Message())
}
