// Package models defines the vault's data model: hidden file bundles,
// subscriptions and the transient values passed between components.
package models

import (
	"io"
	"time"
)

// DisguiseType selects the template used to mask a bundle's on-disk name.
type DisguiseType string

const (
	DisguiseAppleCert         DisguiseType = "apple-cert"
	DisguiseAndroidCredential DisguiseType = "android-credential"
)

// Valid reports whether t is a known disguise type.
func (t DisguiseType) Valid() bool {
	return t == DisguiseAppleCert || t == DisguiseAndroidCredential
}

// FileEntry describes one original file inside a bundle.
type FileEntry struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// HiddenFileBundle is the metadata of a set of files hidden together.
// Bundles are immutable once persisted; edits are delete-and-recreate.
type HiddenFileBundle struct {
	ID     string
	UserID string

	// RealName is the user-chosen name. It is only populated in memory
	// right after hide; at rest only EncryptedName exists.
	RealName      string
	EncryptedName []byte

	DisguisedName string
	DisguiseType  DisguiseType
	// DisguiseMimeType follows from DisguiseType and is not stored.
	DisguiseMimeType string

	TotalSizeBytes int64
	// Files is populated after hide and reveal; listings leave it empty
	// because file names live inside the encrypted blob.
	Files     []FileEntry
	FileCount int

	DeviceFingerprint string
	BlobRef           string
	KDFSalt           []byte
	CreatedAt         time.Time
}

// SumFileSizes returns the total size of files.
func SumFileSizes(files []FileEntry) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// SourceFile is one plaintext input to a hide operation. Size is the
// declared size, used for the quota reservation before any byte is read.
type SourceFile struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

// RevealedFile is one decrypted file returned by reveal.
type RevealedFile struct {
	Name     string
	MimeType string
	Data     []byte
}
