package security

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScryptN = 1024

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("terminal-secret", testScryptN)
	require.NoError(t, err)

	plaintext := []byte(`{"status":"valid"}`)
	aad := []byte("machine-a")

	blob, err := s.Seal(plaintext, aad)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "valid")

	got, err := s.Open(blob, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	again, err := s.Seal(plaintext, aad)
	require.NoError(t, err)
	assert.NotEqual(t, blob, again, "fresh salt and nonce per seal")
}

func TestSealerOpenRejects(t *testing.T) {
	s, err := NewSealer("terminal-secret", testScryptN)
	require.NoError(t, err)
	other, err := NewSealer("other-secret", testScryptN)
	require.NoError(t, err)

	blob, err := s.Seal([]byte("payload"), []byte("machine-a"))
	require.NoError(t, err)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xff

	badVersion := append([]byte(nil), blob...)
	badVersion[0] = 9

	tests := []struct {
		name   string
		sealer *Sealer
		blob   []byte
		aad    string
	}{
		{"different machine", s, blob, "machine-b"},
		{"different secret", other, blob, "machine-a"},
		{"tampered ciphertext", s, tampered, "machine-a"},
		{"unknown version", s, badVersion, "machine-a"},
		{"truncated", s, blob[:10], "machine-a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.blob, []byte(tt.aad))
			assert.ErrorIs(t, err, ErrSealCorrupted)
		})
	}
}

func TestNewSealerValidation(t *testing.T) {
	_, err := NewSealer("", testScryptN)
	assert.Error(t, err)

	_, err = NewSealer("secret", 1000)
	assert.Error(t, err)
}

func TestMatchesDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("open-sesame"))
	digest := hex.EncodeToString(sum[:])

	assert.True(t, MatchesDigest("open-sesame", digest))
	assert.False(t, MatchesDigest("open-sesame ", digest))
	assert.False(t, MatchesDigest("open-sesame", ""))
	assert.False(t, MatchesDigest("open-sesame", "zz"))
}
