package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/config"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	*App
	out *bytes.Buffer
	dir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:            filepath.Join(dir, "data"),
		UserID:             "alice",
		ChunkSize:          16,
		SubscriptionPeriod: 24 * time.Hour,
	}

	keys := &cryptox.Argon2KeyProvider{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}
	a, err := newApp(context.Background(), cfg, keys, logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	out := &bytes.Buffer{}
	a.out = out
	return &testApp{App: a, out: out, dir: dir}
}

// input replaces the line reader with the given lines.
func (ta *testApp) input(lines ...string) {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	ta.reader = rdr(b.String())
}

func (ta *testApp) writeSource(t *testing.T, name, content string) string {
	t.Helper()
	src := filepath.Join(ta.dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o700))
	path := filepath.Join(src, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (ta *testApp) bundleIDs(t *testing.T) []string {
	t.Helper()
	bundles, err := ta.vault.List(context.Background(), ta.config.UserID)
	require.NoError(t, err)
	ids := make([]string, 0, len(bundles))
	for _, b := range bundles {
		ids = append(ids, b.ID)
	}
	return ids
}

func stubPINs(t *testing.T, pins ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	i := 0
	readPassword = func(int) ([]byte, error) {
		if i >= len(pins) {
			return nil, io.EOF
		}
		pin := []byte(pins[i])
		i++
		return pin, nil
	}
}

func TestApp_Lifecycle(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	notes := ta.writeSource(t, "notes.txt", "meet at the old bridge at nine")
	photo := ta.writeSource(t, "photo.jpg", "\xff\xd8\xff\xe0 not really a jpeg")

	// no subscription yet
	ta.input("holiday", "apple-cert", notes, "")
	stubPINs(t, "1234", "1234")
	var inactive *common.SubscriptionInactiveError
	require.ErrorAs(t, ta.Hide(ctx), &inactive)
	assert.Contains(t, ta.promptStatus(), "alice")

	require.NoError(t, ta.Subscribe(ctx, []string{"pro"}))
	assert.Contains(t, ta.out.String(), "Subscribed to pro")
	assert.Equal(t, "(alice pro/active)", ta.promptStatus())

	ta.out.Reset()
	ta.input("holiday", "", notes, photo, "")
	stubPINs(t, "1234", "1234")
	require.NoError(t, ta.Hide(ctx))
	assert.Contains(t, ta.out.String(), "Hidden 2 file(s)")
	assert.Contains(t, ta.out.String(), "100%")

	ids := ta.bundleIDs(t)
	require.Len(t, ids, 1)
	id := ids[0]

	ta.out.Reset()
	require.NoError(t, ta.List(ctx))
	assert.Contains(t, ta.out.String(), id)
	assert.Contains(t, ta.out.String(), "application/")
	assert.NotContains(t, ta.out.String(), "holiday")

	outDir := filepath.Join(ta.dir, "revealed")

	stubPINs(t, "9999")
	var wrongPin *common.WrongPinError
	require.ErrorAs(t, ta.Reveal(ctx, []string{id, outDir}), &wrongPin)
	_, err := os.Stat(outDir)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	ta.out.Reset()
	stubPINs(t, "1234")
	require.NoError(t, ta.Reveal(ctx, []string{id, outDir}))
	assert.Contains(t, ta.out.String(), `Revealed "holiday"`)

	got, err := os.ReadFile(filepath.Join(outDir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "meet at the old bridge at nine", string(got))
	got, err = os.ReadFile(filepath.Join(outDir, "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "\xff\xd8\xff\xe0 not really a jpeg", string(got))

	stubPINs(t, "1234")
	require.ErrorIs(t, ta.Reveal(ctx, []string{id, outDir}), common.ErrorValidation)

	ta.out.Reset()
	require.NoError(t, ta.Status(ctx))
	assert.Contains(t, ta.out.String(), "pro")
	assert.Contains(t, ta.out.String(), "Bundles:")

	ta.input("n")
	require.NoError(t, ta.Delete(ctx, []string{id}))
	assert.Len(t, ta.bundleIDs(t), 1)

	ta.input("y")
	require.NoError(t, ta.Delete(ctx, []string{id}))
	assert.Empty(t, ta.bundleIDs(t))

	ta.out.Reset()
	require.NoError(t, ta.List(ctx))
	assert.Contains(t, ta.out.String(), "No hidden bundles")

	ta.input("yes")
	require.NoError(t, ta.Cancel(ctx))
	assert.Equal(t, "(alice pro/cancelled)", ta.promptStatus())

	ta.out.Reset()
	require.NoError(t, ta.Status(ctx))
	assert.Contains(t, ta.out.String(), "cancelled")
	assert.Contains(t, ta.out.String(), "purchase a new subscription")
}

func TestApp_HideRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	require.NoError(t, ta.Subscribe(ctx, nil))
	src := ta.writeSource(t, "a.txt", "abc")

	t.Run("mismatched PINs", func(t *testing.T) {
		ta.input("x", "", src, "")
		stubPINs(t, "1234", "4321")
		require.ErrorIs(t, ta.Hide(ctx), common.ErrorValidation)
	})

	t.Run("missing file", func(t *testing.T) {
		ta.input("x", "", filepath.Join(ta.dir, "nope"), "")
		require.ErrorIs(t, ta.Hide(ctx), common.ErrorValidation)
	})

	t.Run("directory", func(t *testing.T) {
		ta.input("x", "", ta.dir, "")
		require.ErrorIs(t, ta.Hide(ctx), common.ErrorValidation)
	})

	t.Run("no files", func(t *testing.T) {
		ta.input("x", "", "")
		require.ErrorIs(t, ta.Hide(ctx), common.ErrorValidation)
	})

	t.Run("unknown disguise type", func(t *testing.T) {
		ta.input("x", "passport-scan", src, "")
		stubPINs(t, "1234", "1234")
		require.ErrorIs(t, ta.Hide(ctx), common.ErrorValidation)
	})

	assert.Empty(t, ta.bundleIDs(t))

	st, err := ta.vault.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, st.Subscription.StorageUsedBytes)
}

func TestApp_UsageAndUnknownBundle(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	require.NoError(t, ta.Subscribe(ctx, []string{"gold"}))

	require.ErrorIs(t, ta.Reveal(ctx, nil), errUsage)
	require.ErrorIs(t, ta.Delete(ctx, nil), errUsage)

	stubPINs(t, "1234")
	require.ErrorIs(t, ta.Reveal(ctx, []string{"missing"}), common.ErrorNotFound)

	require.ErrorIs(t, ta.Subscribe(ctx, []string{"platinum"}), common.ErrorValidation)
}

func TestStatus_NoSubscription(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.Status(context.Background()))
	assert.Contains(t, ta.out.String(), "No subscription")
	assert.Equal(t, "(alice)", ta.promptStatus())
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "a.txt", outputName("a.txt", 0))
	assert.Equal(t, "passwd", outputName("../../etc/passwd", 0))
	assert.Equal(t, "file-2", outputName("..", 1))
	assert.Equal(t, "file-1", outputName("/", 0))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", mimeType("x.jpg"))
	assert.Equal(t, defaultMimeType, mimeType("x.unknownext"))
	assert.Equal(t, defaultMimeType, mimeType("noext"))
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &progressPrinter{w: &out}
	p.done()
	assert.Empty(t, out.String())

	p.update(models.EncryptionProgress{Phase: models.PhaseEncrypting, Percentage: 42})
	p.done()
	assert.Equal(t, "\rencrypting  42%\n", out.String())
}
