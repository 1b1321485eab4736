package cryptox

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Frame kinds inside a bundle blob.
const (
	FrameManifest byte = 0
	FrameChunk    byte = 1
)

const frameHeaderSize = 1 + 4 + 8 + 1 + 4

var blobMagic = []byte("GVB1")

// ErrMalformedBlob is returned when a blob cannot be parsed into frames.
var ErrMalformedBlob = errors.New("malformed blob")

// FrameHeader locates a frame within a bundle. The encoded header is part of
// the AEAD additional data, so frames cannot be reordered or relabelled.
type FrameHeader struct {
	Kind   byte
	File   uint32
	Chunk  uint64
	Final  bool
	Length uint32
}

func (h FrameHeader) encode() []byte {
	b := make([]byte, frameHeaderSize)
	b[0] = h.Kind
	binary.BigEndian.PutUint32(b[1:5], h.File)
	binary.BigEndian.PutUint64(b[5:13], h.Chunk)
	if h.Final {
		b[13] = 1
	}
	binary.BigEndian.PutUint32(b[14:18], h.Length)
	return b
}

func decodeHeader(b []byte) FrameHeader {
	return FrameHeader{
		Kind:   b[0],
		File:   binary.BigEndian.Uint32(b[1:5]),
		Chunk:  binary.BigEndian.Uint64(b[5:13]),
		Final:  b[13] == 1,
		Length: binary.BigEndian.Uint32(b[14:18]),
	}
}

// NewAEAD returns an XChaCha20-Poly1305 AEAD for key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	return aead, nil
}

// NewBlob returns a buffer holding the blob magic, ready for AppendFrame.
func NewBlob(capacity int) []byte {
	b := make([]byte, 0, len(blobMagic)+capacity)
	return append(b, blobMagic...)
}

// FrameOverhead is the per-frame size added to the plaintext.
const FrameOverhead = frameHeaderSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// AppendFrame seals plaintext under a fresh random nonce and appends
// header || nonce || ciphertext to dst.
func AppendFrame(dst []byte, aead cipher.AEAD, bundleID string, h FrameHeader, plaintext []byte) ([]byte, error) {
	h.Length = uint32(len(plaintext) + aead.Overhead())
	header := h.encode()

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	dst = append(dst, header...)
	dst = append(dst, nonce...)
	return aead.Seal(dst, nonce, plaintext, frameAAD(bundleID, header)), nil
}

// Frame is one parsed, still encrypted frame.
type Frame struct {
	Header     FrameHeader
	header     []byte
	nonce      []byte
	ciphertext []byte
}

// Open authenticates and decrypts the frame.
func (f Frame) Open(aead cipher.AEAD, bundleID string) ([]byte, error) {
	return aead.Open(nil, f.nonce, f.ciphertext, frameAAD(bundleID, f.header))
}

// ParseBlob splits a blob into frames without decrypting anything.
func ParseBlob(blob []byte) ([]Frame, error) {
	if !bytes.HasPrefix(blob, blobMagic) {
		return nil, ErrMalformedBlob
	}
	rest := blob[len(blobMagic):]

	var frames []Frame
	for len(rest) > 0 {
		if len(rest) < frameHeaderSize+chacha20poly1305.NonceSizeX {
			return nil, ErrMalformedBlob
		}
		header := rest[:frameHeaderSize]
		h := decodeHeader(header)
		rest = rest[frameHeaderSize:]

		nonce := rest[:chacha20poly1305.NonceSizeX]
		rest = rest[chacha20poly1305.NonceSizeX:]

		if uint64(h.Length) > uint64(len(rest)) || h.Length < chacha20poly1305.Overhead {
			return nil, ErrMalformedBlob
		}
		frames = append(frames, Frame{Header: h, header: header, nonce: nonce, ciphertext: rest[:h.Length]})
		rest = rest[h.Length:]
	}
	return frames, nil
}

func frameAAD(bundleID string, header []byte) []byte {
	aad := make([]byte, 0, len(bundleID)+len(header))
	aad = append(aad, bundleID...)
	return append(aad, header...)
}

// SealValue seals a small value as nonce || ciphertext bound to aad.
func SealValue(aead cipher.AEAD, aad, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// OpenValue reverses SealValue.
func OpenValue(aead cipher.AEAD, aad, sealed []byte) ([]byte, error) {
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedBlob
	}
	n := aead.NonceSize()
	return aead.Open(nil, sealed[:n], sealed[n:], aad)
}
