package service

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/layer-3/certify/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Hasher(t *testing.T) {
	in := core.HashInput{
		OwnerName:    "Alice",
		CourseName:   "CS101",
		IssuerID:     "issuer-1",
		IssuerWallet: "0xabc",
		IssuedAt:     "2024-01-02T03:04:05Z",
	}

	t.Run("binds every field and the nonce", func(t *testing.T) {
		h := &SHA256Hasher{nonce: func() string { return "n1" }}
		got, err := h.Derive(in)
		require.NoError(t, err)

		sum := sha256.Sum256([]byte("Alice||CS101|issuer-1|0xabc|2024-01-02T03:04:05Z|n1"))
		assert.Equal(t, hex.EncodeToString(sum[:]), got.Hash)
		assert.Equal(t, "n1", got.Nonce)
	})

	t.Run("identical fields never repeat", func(t *testing.T) {
		h := NewSHA256Hasher()
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			got, err := h.Derive(in)
			require.NoError(t, err)
			assert.True(t, core.ValidHash(got.Hash))
			assert.Equal(t, core.NormalizeHash(got.Hash), got.Hash)
			assert.False(t, seen[got.Hash])
			seen[got.Hash] = true
		}
	})
}
