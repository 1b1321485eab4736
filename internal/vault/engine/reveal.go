package engine

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

var errBundleLayout = errors.New("unexpected bundle layout")

// Reveal decrypts every file of a bundle. A wrong PIN and a damaged blob both
// return WrongPinError. No plaintext is returned unless every frame verifies.
func (e *Engine) Reveal(ctx context.Context, userID, bundleID string, pin []byte) (*models.HiddenFileBundle, []models.RevealedFile, error) {
	if len(pin) == 0 {
		return nil, nil, fmt.Errorf("%w: empty PIN", common.ErrorValidation)
	}

	unlock := e.locks.Lock(bundleID)
	defer unlock()

	if _, err := e.owned(ctx, userID, bundleID); err != nil {
		return nil, nil, err
	}
	fp, err := e.Fingerprint(ctx)
	if err != nil {
		return nil, nil, err
	}

	b, blob, err := e.store.Fetch(ctx, bundleID, fp)
	if err != nil {
		return nil, nil, err
	}

	key, err := e.keys.DeriveBundleKey(ctx, fp, pin, b.KDFSalt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, &common.EncryptionError{Err: err}
	}
	defer common.WipeByteArray(key)

	files, realName, err := e.decrypt(ctx, key, b, blob)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		e.log.Warn(ctx, "bundle failed authentication", "bundle_id", b.ID, "error", err)
		return nil, nil, &common.WrongPinError{}
	}

	b.RealName = realName
	b.Files = make([]models.FileEntry, len(files))
	for i, f := range files {
		b.Files[i] = models.FileEntry{Name: f.Name, MimeType: f.MimeType, Size: int64(len(f.Data))}
	}
	return b, files, nil
}

// decrypt opens the name, the manifest and every chunk. On error all
// plaintext produced so far is wiped.
func (e *Engine) decrypt(ctx context.Context, key []byte, b *models.HiddenFileBundle, blob []byte) (files []models.RevealedFile, realName string, err error) {
	defer func() {
		if err != nil {
			for _, f := range files {
				common.WipeByteArray(f.Data)
			}
			files = nil
		}
	}()

	name, err := openWithSubKey(key, cryptox.PurposeName, 0, func(aead cipher.AEAD) ([]byte, error) {
		return cryptox.OpenValue(aead, []byte(b.ID), b.EncryptedName)
	})
	if err != nil {
		return nil, "", fmt.Errorf("name: %w", err)
	}
	realName = string(name)

	frames, err := cryptox.ParseBlob(blob)
	if err != nil {
		return nil, "", err
	}
	if len(frames) == 0 || frames[0].Header.Kind != cryptox.FrameManifest || !frames[0].Header.Final {
		return nil, "", errBundleLayout
	}

	manifest, err := openWithSubKey(key, cryptox.PurposeManifest, 0, func(aead cipher.AEAD) ([]byte, error) {
		return frames[0].Open(aead, b.ID)
	})
	if err != nil {
		return nil, "", fmt.Errorf("manifest: %w", err)
	}

	var entries []models.FileEntry
	if err := json.Unmarshal(manifest, &entries); err != nil {
		return nil, "", fmt.Errorf("manifest: %w", err)
	}
	if len(entries) != b.FileCount || models.SumFileSizes(entries) != b.TotalSizeBytes {
		return nil, "", errBundleLayout
	}

	files = make([]models.RevealedFile, len(entries))
	for i, entry := range entries {
		files[i] = models.RevealedFile{Name: entry.Name, MimeType: entry.MimeType, Data: make([]byte, 0, entry.Size)}
	}

	rest := frames[1:]
	for i := range entries {
		rest, err = e.decryptFile(ctx, key, b.ID, uint32(i), entries[i].Size, rest, &files[i])
		if err != nil {
			return files, "", err
		}
	}
	if len(rest) != 0 {
		return files, "", errBundleLayout
	}
	return files, realName, nil
}

// decryptFile consumes the chunk frames of one file from frames and returns
// the remaining frames.
func (e *Engine) decryptFile(ctx context.Context, bundleKey []byte, bundleID string, index uint32, size int64,
	frames []cryptox.Frame, out *models.RevealedFile) ([]cryptox.Frame, error) {

	fileKey, err := cryptox.DeriveSubKey(bundleKey, cryptox.PurposeFile, index)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(fileKey)

	aead, err := cryptox.NewAEAD(fileKey)
	if err != nil {
		return nil, err
	}

	for c := uint64(0); ; c++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			return nil, errBundleLayout
		}
		f := frames[0]
		frames = frames[1:]

		if f.Header.Kind != cryptox.FrameChunk || f.Header.File != index || f.Header.Chunk != c {
			return nil, errBundleLayout
		}
		pt, err := f.Open(aead, bundleID)
		if err != nil {
			return nil, err
		}
		if int64(len(out.Data)+len(pt)) > size {
			common.WipeByteArray(pt)
			return nil, errBundleLayout
		}
		out.Data = append(out.Data, pt...)
		common.WipeByteArray(pt)

		if f.Header.Final {
			break
		}
	}

	if int64(len(out.Data)) != size {
		return nil, errBundleLayout
	}
	return frames, nil
}

func openWithSubKey(bundleKey []byte, purpose string, index uint32, open func(cipher.AEAD) ([]byte, error)) ([]byte, error) {
	k, err := cryptox.DeriveSubKey(bundleKey, purpose, index)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(k)

	aead, err := cryptox.NewAEAD(k)
	if err != nil {
		return nil, err
	}
	return open(aead)
}
