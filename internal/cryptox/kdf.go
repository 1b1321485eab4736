// Package cryptox contains the vault's cryptographic building blocks: bundle
// key derivation, purpose-bound sub-keys, the authenticated frame codec used
// for bundle blobs, and device fingerprint hashing for diagnostics.
package cryptox

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of every symmetric key in the vault.
	KeySize = 32
	// SaltSize is the size of the per-bundle KDF salt.
	SaltSize = 16
)

var (
	ErrEmptyPIN      = errors.New("empty PIN")
	ErrShortSalt     = errors.New("salt too short")
	ErrNoFingerprint = errors.New("empty device fingerprint")
)

// Purposes for DeriveSubKey. Changing any of them invalidates existing bundles.
const (
	PurposeManifest = "gophvault.manifest.v1"
	PurposeName     = "gophvault.name.v1"
	PurposeFile     = "gophvault.file.v1"
)

// KeyProvider turns a device fingerprint and a user PIN into a bundle key.
// It lets a hardware-backed keystore replace the software KDF without touching
// the encryption pipeline. Implementations must not retain pin.
type KeyProvider interface {
	DeriveBundleKey(ctx context.Context, fingerprint string, pin, salt []byte) ([]byte, error)
}

// Argon2KeyProvider derives bundle keys with argon2id.
type Argon2KeyProvider struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// NewArgon2KeyProvider returns a provider with the production parameters.
func NewArgon2KeyProvider() *Argon2KeyProvider {
	return &Argon2KeyProvider{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

func (p *Argon2KeyProvider) DeriveBundleKey(ctx context.Context, fingerprint string, pin, salt []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fingerprint == "" {
		return nil, ErrNoFingerprint
	}
	if len(pin) == 0 {
		return nil, ErrEmptyPIN
	}
	if len(salt) < SaltSize {
		return nil, ErrShortSalt
	}

	material := keyMaterial(fingerprint, pin)
	defer common.WipeByteArray(material)

	return argon2.IDKey(material, salt, p.Time, p.MemoryKiB, p.Threads, KeySize), nil
}

// keyMaterial binds the PIN to the device: fingerprint || 0x00 || pin.
func keyMaterial(fingerprint string, pin []byte) []byte {
	m := make([]byte, 0, len(fingerprint)+1+len(pin))
	m = append(m, fingerprint...)
	m = append(m, 0)
	m = append(m, pin...)
	return m
}

// DeriveSubKey derives a KeySize key for purpose (and index, for per-file
// keys) from a bundle key with HKDF-SHA256.
func DeriveSubKey(bundleKey []byte, purpose string, index uint32) ([]byte, error) {
	info := make([]byte, len(purpose)+4)
	copy(info, purpose)
	binary.BigEndian.PutUint32(info[len(purpose):], index)

	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, bundleKey, nil, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}
