package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestSigningCapabilityRoundTrip(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t))
	now := time.Now().Truncate(time.Second)

	token, err := tk.CapabilityToToken(&core.Capability{
		Kind:          core.CapabilitySigning,
		UserID:        "user-1",
		Email:         "issuer@uni.edu",
		Role:          core.RoleIssuer,
		WalletAddress: "0xabc",
		WalletID:      "wallet-1",
		Purpose:       core.PurposeSigning,
		IssuedAt:      now,
		ExpiresAt:     now.Add(core.DefaultSigningTTL),
	})
	require.NoError(t, err)

	c, err := tk.TokenToCapability(token, core.CapabilitySigning)
	require.NoError(t, err)
	assert.Equal(t, core.CapabilitySigning, c.Kind)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, core.RoleIssuer, c.Role)
	assert.Equal(t, "0xabc", c.WalletAddress)
	assert.Equal(t, "wallet-1", c.WalletID)
	assert.NotEmpty(t, c.ID)
	assert.True(t, c.ExpiresAt.Equal(now.Add(core.DefaultSigningTTL)))
	require.NoError(t, c.Validate(core.CapabilitySigning, now))
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t))
	now := time.Now()

	session, err := tk.CapabilityToToken(&core.Capability{
		Kind:      core.CapabilitySession,
		UserID:    "user-1",
		Role:      core.RoleIssuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = tk.TokenToCapability(session, core.CapabilitySigning)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	c, err := tk.TokenToCapability(session, core.CapabilitySession)
	require.NoError(t, err)
	assert.Equal(t, core.CapabilitySession, c.Kind)
}

func TestExpiredToken(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t))
	past := time.Now().Add(-time.Hour)

	token, err := tk.CapabilityToToken(&core.Capability{
		Kind:      core.CapabilitySession,
		UserID:    "user-1",
		Role:      core.RoleOwner,
		IssuedAt:  past,
		ExpiresAt: past.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = tk.TokenToCapability(token, core.CapabilitySession)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.Equal(t, core.KindExpired, core.KindOf(err))
}

func TestForeignKeyRejected(t *testing.T) {
	now := time.Now()
	token, err := NewJWTTokenizer(newKey(t)).CapabilityToToken(&core.Capability{
		Kind:      core.CapabilitySession,
		UserID:    "user-1",
		Role:      core.RoleAdmin,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = NewJWTTokenizer(newKey(t)).TokenToCapability(token, core.CapabilitySession)
	assert.Equal(t, core.KindNotAuthorized, core.KindOf(err))
}

func TestUnboundedCapabilityRefused(t *testing.T) {
	_, err := NewJWTTokenizer(newKey(t)).CapabilityToToken(&core.Capability{
		Kind:     core.CapabilitySession,
		UserID:   "user-1",
		Role:     core.RoleAdmin,
		IssuedAt: time.Now(),
	})
	require.ErrorContains(t, err, "no expiry")
}
