// Package device identifies the device a vault runs on. Bundles are bound to
// this identity and cannot be decrypted anywhere else.
//
// The file-backed identity survives restarts and application upgrades. It does
// not survive a reinstall or a wipe of the data directory; after that every
// existing bundle is unrecoverable.
package device

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
)

// Provider returns the stable fingerprint of the current device.
type Provider interface {
	Fingerprint(ctx context.Context) (string, error)
}

// Static is a fixed fingerprint.
type Static string

func (s Static) Fingerprint(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("empty device fingerprint")
	}
	return string(s), nil
}

const idBytes = 32

// FileProvider keeps a random 256-bit identifier in a file.
type FileProvider struct {
	path string

	mu     sync.Mutex
	cached string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Fingerprint reads the identifier, creating it on first use.
func (p *FileProvider) Fingerprint(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := p.read()
	if errors.Is(err, os.ErrNotExist) {
		id, err = p.create()
	}
	if err != nil {
		return "", err
	}

	p.cached = id
	return id, nil
}

func (p *FileProvider) read() (string, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(b))
	if raw, err := hex.DecodeString(id); err != nil || len(raw) != idBytes {
		// never regenerate silently: a new id orphans every bundle
		return "", fmt.Errorf("device id file %s is corrupt", p.path)
	}
	return id, nil
}

func (p *FileProvider) create() (string, error) {
	if _, err := filex.EnsureDir(filepath.Dir(p.path)); err != nil {
		return "", err
	}

	id := hex.EncodeToString(common.GenerateRandByteArray(idBytes))
	err := filex.CreateFileExclusive(p.path, []byte(id+"\n"), 0o600)
	if errors.Is(err, filex.ErrExists) {
		// another process got there first
		return p.read()
	}
	if err != nil {
		return "", fmt.Errorf("writing device id: %w", err)
	}
	return id, nil
}
