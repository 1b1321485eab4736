// Package disguise generates the innocuous on-device names under which hidden
// bundles are stored.
package disguise

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Disguise is a generated name with the MIME type it pretends to have.
type Disguise struct {
	Name     string
	MimeType string
}

// NameChecker reports whether a disguised name is already used within a
// device namespace.
type NameChecker interface {
	DisguisedNameExists(ctx context.Context, deviceFingerprint, name string) (bool, error)
}

type template struct {
	prefix   string
	suffix   string
	mimeType string
	upper    bool
}

var templates = map[models.DisguiseType]template{
	models.DisguiseAppleCert: {
		prefix:   "com.apple.managed.certificate.",
		suffix:   ".cer",
		mimeType: "application/pkix-cert",
		upper:    true,
	},
	models.DisguiseAndroidCredential: {
		prefix:   "android.security.keystore.",
		suffix:   ".p12",
		mimeType: "application/x-pkcs12",
	},
}

// 128 bits
const randomBytes = 16

// randomHex is a seam for tests.
var randomHex = common.MakeRandHexString

// Namer produces collision-free disguised names.
type Namer struct {
	checker NameChecker
}

func NewNamer(checker NameChecker) *Namer {
	return &Namer{checker: checker}
}

// Generate returns a fresh disguise of the requested type that is not yet
// used on the device. A taken name is regenerated once; a second collision
// fails with *common.CollisionError.
func (n *Namer) Generate(ctx context.Context, t models.DisguiseType, deviceFingerprint string) (Disguise, error) {
	tpl, ok := templates[t]
	if !ok {
		return Disguise{}, fmt.Errorf("%w: unknown disguise type %q", common.ErrorValidation, t)
	}

	var last string
	for attempt := 0; attempt < 2; attempt++ {
		name, err := tpl.render()
		if err != nil {
			return Disguise{}, fmt.Errorf("generating disguised name: %w", err)
		}

		taken, err := n.checker.DisguisedNameExists(ctx, deviceFingerprint, name)
		if err != nil {
			return Disguise{}, fmt.Errorf("checking disguised name: %w", err)
		}
		if !taken {
			return Disguise{Name: name, MimeType: tpl.mimeType}, nil
		}
		last = name
	}
	return Disguise{}, &common.CollisionError{Name: last}
}

func (t template) render() (string, error) {
	r, err := randomHex(randomBytes)
	if err != nil {
		return "", err
	}
	if t.upper {
		r = strings.ToUpper(r)
	}
	return t.prefix + r + t.suffix, nil
}

// MimeType returns the MIME type a disguise type pretends to have.
func MimeType(t models.DisguiseType) string {
	return templates[t].mimeType
}
