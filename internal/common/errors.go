// Package common defines shared constants, sentinel errors and the typed vault
// error taxonomy used across gophvault layers. Callers should use errors.Is
// for sentinels and errors.As for typed errors.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrReservationRejected is returned by repositories when a conditional
	// quota reservation matched no row.
	ErrReservationRejected = errors.New("reservation rejected")
)

// DeviceMismatchError reports that a bundle was created on another device.
// The data is unrecoverable off its origin device, so this is never retryable.
type DeviceMismatchError struct {
	BundleID string
}

func (e *DeviceMismatchError) Error() string {
	return "bundle belongs to another device"
}

// WrongPinError is returned when a bundle cannot be authenticated. A wrong PIN
// and damaged ciphertext produce the same error on purpose.
type WrongPinError struct{}

func (e *WrongPinError) Error() string {
	return "incorrect PIN or unreadable bundle"
}

// QuotaExceededError carries the byte counts needed to render a quota message.
type QuotaExceededError struct {
	Required  int64
	Available int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: required %d bytes, available %d bytes", e.Required, e.Available)
}

// SubscriptionInactiveError reports that the current billing state does not
// permit the requested vault operation.
type SubscriptionInactiveError struct {
	Status      string
	Remediation string
}

func (e *SubscriptionInactiveError) Error() string {
	return fmt.Sprintf("subscription is %s: %s", e.Status, e.Remediation)
}

// StorageIOError wraps a failed blob or metadata I/O operation. It is retryable.
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// CollisionError reports that no unique disguised name could be produced.
type CollisionError struct {
	Name string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("disguised name collision: %s", e.Name)
}

// EncryptionError wraps a cipher or key-derivation failure during hide.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	var sio *StorageIOError
	return errors.As(err, &sio)
}
