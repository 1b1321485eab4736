package common

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"disguise suffix", 16},
		{"device id", 32},
		{"empty", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := MakeRandHexString(tt.size)
			require.NoError(t, err)
			assert.Len(t, s, 2*tt.size)

			raw, err := hex.DecodeString(s)
			require.NoError(t, err)
			assert.Len(t, raw, tt.size)
			assert.Equal(t, strings.ToLower(s), s)
		})
	}
}

func TestMakeRandHexString_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s, err := MakeRandHexString(16)
		require.NoError(t, err)
		assert.False(t, seen[s], "duplicate %s", s)
		seen[s] = true
	}
}

// Salts and nonces must differ between calls.
func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(16)
	b := GenerateRandByteArray(16)
	require.Len(t, a, 16)
	require.Len(t, b, 16)
	assert.NotEqual(t, a, b)

	assert.Empty(t, GenerateRandByteArray(0))
}

func TestWipeByteArray(t *testing.T) {
	key := GenerateRandByteArray(32)
	view := key[8:16]

	WipeByteArray(key)
	assert.Equal(t, make([]byte, 32), key)
	assert.Equal(t, make([]byte, 8), view, "wiping clears the shared backing array")

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
