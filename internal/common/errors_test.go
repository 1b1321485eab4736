package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors_MatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reveal: %w", &DeviceMismatchError{BundleID: "b1"})

	var dm *DeviceMismatchError
	assert.True(t, errors.As(err, &dm))
	assert.Equal(t, "b1", dm.BundleID)

	var wp *WrongPinError
	assert.False(t, errors.As(err, &wp))
}

func TestQuotaExceededError_Message(t *testing.T) {
	err := &QuotaExceededError{Required: 13 * GiB, Available: 12 * GiB}
	assert.Contains(t, err.Error(), "required 13958643712 bytes")
	assert.Contains(t, err.Error(), "available 12884901888 bytes")
}

func TestWrongPinError_DoesNotLeakCause(t *testing.T) {
	assert.Equal(t, "incorrect PIN or unreadable bundle", (&WrongPinError{}).Error())
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("connection reset")
	assert.True(t, IsRetryable(fmt.Errorf("put: %w", &StorageIOError{Op: "put", Err: base})))
	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(&CollisionError{Name: "x"}))

	var sio *StorageIOError
	assert.True(t, errors.As(&StorageIOError{Op: "get", Err: base}, &sio))
	assert.ErrorIs(t, sio, base)
}

func TestEncryptionError_Unwrap(t *testing.T) {
	base := errors.New("cipher init")
	err := &EncryptionError{Err: base}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "encryption failed: cipher init", err.Error())
}
