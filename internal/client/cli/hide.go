package cli

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault/engine"
)

const defaultMimeType = "application/octet-stream"

// Hide prompts for a bundle name, a disguise type, the files and a PIN, then
// hides the files as one bundle.
func (a *App) Hide(ctx context.Context) error {
	name, err := GetSimpleText(a.reader, "Bundle name", a.out)
	if err != nil {
		return err
	}

	dt, err := GetSimpleText(a.reader, fmt.Sprintf("Disguise type (%s, %s) [%s]",
		models.DisguiseAppleCert, models.DisguiseAndroidCredential, models.DisguiseAppleCert), a.out)
	if err != nil {
		return err
	}
	if dt == "" {
		dt = string(models.DisguiseAppleCert)
	}

	paths, err := GetMultiline(a.reader, "Files to hide, one path per line", a.out)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no files given", common.ErrorValidation)
	}

	files, closeFiles, err := openSources(paths)
	if err != nil {
		return err
	}
	defer closeFiles()

	pin, err := a.newPIN()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pin)

	p := &progressPrinter{w: a.out}
	b, err := a.vault.Hide(ctx, engine.HideRequest{
		UserID:       a.config.UserID,
		Files:        files,
		RealName:     name,
		DisguiseType: models.DisguiseType(dt),
		PIN:          pin,
		Progress:     p.update,
	})
	p.done()
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, success("Hidden %d file(s), %s, as %s", b.FileCount, bytesString(b.TotalSizeBytes), b.DisguisedName))
	fmt.Fprintln(a.out, hint("id %s", b.ID))
	return nil
}

// newPIN reads a PIN twice and returns it if both entries match.
func (a *App) newPIN() ([]byte, error) {
	pin, err := GetPIN(a.out, "Enter PIN: ")
	if err != nil {
		return nil, err
	}
	again, err := GetPIN(a.out, "Repeat PIN: ")
	if err != nil {
		common.WipeByteArray(pin)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if len(pin) == 0 {
		return nil, fmt.Errorf("%w: empty PIN", common.ErrorValidation)
	}
	if subtle.ConstantTimeCompare(pin, again) != 1 {
		common.WipeByteArray(pin)
		return nil, fmt.Errorf("%w: PINs do not match", common.ErrorValidation)
	}
	return pin, nil
}

// openSources opens every path for reading. The returned func closes them.
func openSources(paths []string) ([]models.SourceFile, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	files := make([]models.SourceFile, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
		}
		opened = append(opened, f)

		st, err := f.Stat()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if !st.Mode().IsRegular() {
			closeAll()
			return nil, nil, fmt.Errorf("%w: %s is not a regular file", common.ErrorValidation, p)
		}

		files = append(files, models.SourceFile{
			Name:     filepath.Base(p),
			MimeType: mimeType(p),
			Size:     st.Size(),
			Reader:   f,
		})
	}
	return files, closeAll, nil
}

func mimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return defaultMimeType
}

// progressPrinter redraws a single progress line.
type progressPrinter struct {
	w       io.Writer
	started bool
}

func (p *progressPrinter) update(ev models.EncryptionProgress) {
	p.started = true
	fmt.Fprintf(p.w, "\r%-10s %3d%%", ev.Phase, ev.Percentage)
}

func (p *progressPrinter) done() {
	if p.started {
		fmt.Fprintln(p.w)
	}
}
