package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps vault errors onto gRPC status codes. Messages of typed errors
// are safe to show; anything unexpected becomes a bare Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		dm   *common.DeviceMismatchError
		wp   *common.WrongPinError
		qe   *common.QuotaExceededError
		si   *common.SubscriptionInactiveError
		sio  *common.StorageIOError
		col  *common.CollisionError
		encr *common.EncryptionError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &dm):
		return status.Error(codes.FailedPrecondition, dm.Error())
	case errors.As(err, &wp):
		return status.Error(codes.PermissionDenied, wp.Error())
	case errors.As(err, &qe):
		return status.Error(codes.ResourceExhausted, qe.Error())
	case errors.As(err, &si):
		return status.Error(codes.FailedPrecondition, si.Error())
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.As(err, &sio):
		return status.Errorf(codes.Unavailable, "storage %s failed", sio.Op)
	case errors.As(err, &col):
		return status.Error(codes.Aborted, col.Error())
	case errors.As(err, &encr):
		return status.Error(codes.Internal, "encryption failed")
	}
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}
