package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// HideRequest is the input of Hide.
type HideRequest struct {
	UserID       string
	Files        []models.SourceFile
	RealName     string
	DisguiseType models.DisguiseType
	PIN          []byte
	Progress     models.ProgressFunc
}

func (r *HideRequest) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: empty user id", common.ErrorValidation)
	case len(r.Files) == 0:
		return fmt.Errorf("%w: no files", common.ErrorValidation)
	case r.RealName == "":
		return fmt.Errorf("%w: empty name", common.ErrorValidation)
	case !r.DisguiseType.Valid():
		return fmt.Errorf("%w: unknown disguise type %q", common.ErrorValidation, r.DisguiseType)
	case len(r.PIN) == 0:
		return fmt.Errorf("%w: empty PIN", common.ErrorValidation)
	}
	for i, f := range r.Files {
		if f.Name == "" || f.Size < 0 || f.Reader == nil {
			return fmt.Errorf("%w: invalid file #%d", common.ErrorValidation, i)
		}
	}
	return nil
}

// TotalSize returns the declared size of all files.
func (r *HideRequest) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Hide encrypts the files into one bundle, gives it a disguised name and
// persists it. Nothing is stored unless every step succeeds. Progress goes
// from preparing 0 through encrypting 1..95 to finalizing 100.
func (e *Engine) Hide(ctx context.Context, req HideRequest) (*models.HiddenFileBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	progress := newProgressTracker(req.Progress, req.TotalSize())
	progress.preparing()

	fp, err := e.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}

	bundleID := uuid.NewString()
	unlock := e.locks.Lock(bundleID)
	defer unlock()

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	key, err := e.keys.DeriveBundleKey(ctx, fp, req.PIN, salt)
	if err != nil {
		return nil, e.hideError(ctx, err)
	}
	defer common.WipeByteArray(key)

	entries := make([]models.FileEntry, len(req.Files))
	for i, f := range req.Files {
		entries[i] = models.FileEntry{Name: f.Name, MimeType: f.MimeType, Size: f.Size}
	}

	// The frame sizes follow from the declared file sizes, so every file is
	// encrypted straight into its own region of one preallocated blob.
	blob, err := e.sealManifest(key, bundleID, entries)
	if err != nil {
		return nil, e.hideError(ctx, err)
	}
	start := len(blob)
	regions := make([][]byte, len(req.Files))
	for i, f := range req.Files {
		end := start + e.frameBytes(f.Size)
		regions[i] = blob[start:start:end]
		start = end
	}
	blob = blob[:start]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range req.Files {
		g.Go(func() error {
			return e.encryptFile(gctx, key, bundleID, uint32(i), req.Files[i], progress, regions[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, e.hideError(ctx, err)
	}

	encryptedName, err := e.sealName(key, bundleID, req.RealName)
	if err != nil {
		return nil, e.hideError(ctx, err)
	}

	d, err := e.namer.Generate(ctx, req.DisguiseType, fp)
	if err != nil {
		return nil, err
	}

	b := &models.HiddenFileBundle{
		ID:                bundleID,
		UserID:            req.UserID,
		RealName:          req.RealName,
		EncryptedName:     encryptedName,
		DisguisedName:     d.Name,
		DisguiseType:      req.DisguiseType,
		DisguiseMimeType:  d.MimeType,
		TotalSizeBytes:    req.TotalSize(),
		Files:             entries,
		FileCount:         len(entries),
		DeviceFingerprint: fp,
		BlobRef:           d.Name,
		KDFSalt:           salt,
		CreatedAt:         e.now().UTC(),
	}

	if err := e.store.Persist(ctx, b, blob); err != nil {
		return nil, err
	}

	progress.finalizing()
	e.log.Info(ctx, "bundle hidden", "bundle_id", b.ID, "files", b.FileCount, "size", b.TotalSizeBytes,
		"device", cryptox.FingerprintHash(fp))
	return b, nil
}

// hideError keeps context errors as they are and wraps everything else.
func (e *Engine) hideError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &common.EncryptionError{Err: err}
}

// frameBytes is the encoded size of a file of size bytes.
func (e *Engine) frameBytes(size int64) int {
	return int(size + e.chunkCount(size)*cryptox.FrameOverhead)
}

func (e *Engine) chunkCount(size int64) int64 {
	chunkSize := int64(e.cfg.ChunkSize)
	chunks := (size + chunkSize - 1) / chunkSize
	if chunks == 0 {
		chunks = 1
	}
	return chunks
}

// encryptFile reads exactly f.Size bytes and seals them as chunk frames into
// dst, whose capacity is exactly frameBytes(f.Size).
func (e *Engine) encryptFile(ctx context.Context, bundleKey []byte, bundleID string, index uint32,
	f models.SourceFile, progress *progressTracker, dst []byte) error {

	fileKey, err := cryptox.DeriveSubKey(bundleKey, cryptox.PurposeFile, index)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(fileKey)

	aead, err := cryptox.NewAEAD(fileKey)
	if err != nil {
		return err
	}

	chunkSize := int64(e.cfg.ChunkSize)
	chunks := e.chunkCount(f.Size)

	buf := make([]byte, chunkSize)
	defer common.WipeByteArray(buf)

	out := dst[:0]
	remaining := f.Size
	for c := int64(0); c < chunks; c++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := min(remaining, chunkSize)
		if _, err := io.ReadFull(f.Reader, buf[:n]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: file %q is shorter than declared %d bytes", common.ErrorValidation, f.Name, f.Size)
			}
			return fmt.Errorf("reading %q: %w", f.Name, err)
		}

		h := cryptox.FrameHeader{Kind: cryptox.FrameChunk, File: index, Chunk: uint64(c), Final: c == chunks-1}
		out, err = cryptox.AppendFrame(out, aead, bundleID, h, buf[:n])
		if err != nil {
			return err
		}

		remaining -= n
		progress.add(n)
	}
	if len(out) != cap(dst) {
		return fmt.Errorf("file %q encoded to %d bytes, expected %d", f.Name, len(out), cap(dst))
	}

	var extra [1]byte
	if n, err := io.ReadFull(f.Reader, extra[:]); n > 0 {
		return fmt.Errorf("%w: file %q is longer than declared %d bytes", common.ErrorValidation, f.Name, f.Size)
	} else if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading %q: %w", f.Name, err)
	}
	return nil
}

// sealManifest returns a blob buffer holding the magic and the manifest frame,
// with capacity for the chunk frames of every entry.
func (e *Engine) sealManifest(bundleKey []byte, bundleID string, entries []models.FileEntry) ([]byte, error) {
	manifestKey, err := cryptox.DeriveSubKey(bundleKey, cryptox.PurposeManifest, 0)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(manifestKey)

	manifestAEAD, err := cryptox.NewAEAD(manifestKey)
	if err != nil {
		return nil, err
	}

	manifest, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	size := len(manifest) + cryptox.FrameOverhead
	for _, f := range entries {
		size += e.frameBytes(f.Size)
	}

	return cryptox.AppendFrame(cryptox.NewBlob(size), manifestAEAD, bundleID,
		cryptox.FrameHeader{Kind: cryptox.FrameManifest, Final: true}, manifest)
}

// sealName encrypts the real name of the bundle.
func (e *Engine) sealName(bundleKey []byte, bundleID, realName string) ([]byte, error) {
	nameKey, err := cryptox.DeriveSubKey(bundleKey, cryptox.PurposeName, 0)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(nameKey)

	nameAEAD, err := cryptox.NewAEAD(nameKey)
	if err != nil {
		return nil, err
	}
	return cryptox.SealValue(nameAEAD, []byte(bundleID), []byte(realName))
}
