package disguise

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	taken map[string]bool
	calls int
	err   error
}

func (f *fakeChecker) DisguisedNameExists(_ context.Context, _ string, name string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.taken[name], nil
}

func TestGenerate_Templates(t *testing.T) {
	n := NewNamer(&fakeChecker{})
	ctx := context.Background()

	apple, err := n.Generate(ctx, models.DisguiseAppleCert, "dev")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^com\.apple\.managed\.certificate\.[0-9A-F]{32}\.cer$`), apple.Name)
	assert.Equal(t, "application/pkix-cert", apple.MimeType)

	android, err := n.Generate(ctx, models.DisguiseAndroidCredential, "dev")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^android\.security\.keystore\.[0-9a-f]{32}\.p12$`), android.Name)
	assert.Equal(t, "application/x-pkcs12", android.MimeType)
	assert.Equal(t, android.MimeType, MimeType(models.DisguiseAndroidCredential))
}

func TestGenerate_Unique(t *testing.T) {
	n := NewNamer(&fakeChecker{})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		d, err := n.Generate(context.Background(), models.DisguiseAppleCert, "dev")
		require.NoError(t, err)
		require.False(t, seen[d.Name])
		seen[d.Name] = true
	}
}

func TestGenerate_UnknownType(t *testing.T) {
	_, err := NewNamer(&fakeChecker{}).Generate(context.Background(), "windows-dll", "dev")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func withRandom(t *testing.T, values ...string) {
	t.Helper()
	orig := randomHex
	i := 0
	randomHex = func(int) (string, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
	t.Cleanup(func() { randomHex = orig })
}

func TestGenerate_RegeneratesOnce(t *testing.T) {
	withRandom(t, "aa", "bb")
	checker := &fakeChecker{taken: map[string]bool{"android.security.keystore.aa.p12": true}}

	d, err := NewNamer(checker).Generate(context.Background(), models.DisguiseAndroidCredential, "dev")
	require.NoError(t, err)
	assert.Equal(t, "android.security.keystore.bb.p12", d.Name)
	assert.Equal(t, 2, checker.calls)
}

func TestGenerate_SecondCollisionFails(t *testing.T) {
	withRandom(t, "aa")
	checker := &fakeChecker{taken: map[string]bool{"com.apple.managed.certificate.AA.cer": true}}

	_, err := NewNamer(checker).Generate(context.Background(), models.DisguiseAppleCert, "dev")
	var ce *common.CollisionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "com.apple.managed.certificate.AA.cer", ce.Name)
	assert.Equal(t, 2, checker.calls)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := NewNamer(&fakeChecker{err: errors.New("db down")}).Generate(context.Background(), models.DisguiseAppleCert, "dev")
	assert.ErrorContains(t, err, "db down")

	orig := randomHex
	randomHex = func(int) (string, error) { return "", errors.New("no entropy") }
	defer func() { randomHex = orig }()

	_, err = NewNamer(&fakeChecker{}).Generate(context.Background(), models.DisguiseAppleCert, "dev")
	assert.ErrorContains(t, err, "no entropy")
}
