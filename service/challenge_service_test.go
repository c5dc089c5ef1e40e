package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeProducesSigningCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := eth.AddressOf(f.issuerKey)

	ch, err := f.challenge.RequestChallenge(ctx, "0x"+strings.ToUpper(address[2:]))
	require.NoError(t, err)
	assert.Equal(t, core.ChallengeMessagePrefix+ch.Nonce, ch.Message)
	assert.WithinDuration(t, time.Now().Add(core.ChallengeTTL), ch.ExpiresAt, 5*time.Second)

	sig, err := eth.SignPersonal(ch.Message, f.issuerKey)
	require.NoError(t, err)
	grant, err := f.challenge.VerifySignature(ctx, address, sig, ch.Message)
	require.NoError(t, err)

	c, err := f.tokenizer.TokenToCapability(grant.Token, core.CapabilitySigning)
	require.NoError(t, err)
	require.NoError(t, c.Validate(core.CapabilitySigning, time.Now()))
	assert.Equal(t, core.RoleIssuer, c.Role)
	assert.Equal(t, f.issuer.ID, c.UserID)
	assert.Equal(t, address, c.WalletAddress)
	assert.Equal(t, f.wallet.ID, c.WalletID)
	assert.Equal(t, core.PurposeSigning, c.Purpose)

	assert.Len(t, f.audits(core.ActionSignatureVerified, core.AuditSuccess), 1)
}

func TestChallengeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := eth.AddressOf(f.issuerKey)

	ch, err := f.challenge.RequestChallenge(ctx, address)
	require.NoError(t, err)
	sig, err := eth.SignPersonal(ch.Message, f.issuerKey)
	require.NoError(t, err)

	_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
	require.NoError(t, err)

	_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
	require.ErrorIs(t, err, core.ErrChallengeMissing)
	requireKind(t, err, core.KindNotFound)
}

func TestChallengeExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := eth.AddressOf(f.issuerKey)

	ch, err := f.challenge.RequestChallenge(ctx, address)
	require.NoError(t, err)
	sig, err := eth.SignPersonal(ch.Message, f.issuerKey)
	require.NoError(t, err)

	f.challenge.now = func() time.Time { return time.Now().Add(core.ChallengeTTL + time.Second) }
	_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
	require.ErrorIs(t, err, core.ErrChallengeExpired)
	requireKind(t, err, core.KindExpired)

	_, err = f.challenges.Get(ctx, address)
	require.ErrorIs(t, err, core.ErrChallengeMissing)

	f.challenge.now = time.Now
	ch, err = f.challenge.RequestChallenge(ctx, address)
	require.NoError(t, err)
	sig, err = eth.SignPersonal(ch.Message, f.issuerKey)
	require.NoError(t, err)
	_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
	require.NoError(t, err)
}

func TestChallengeReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := eth.AddressOf(f.issuerKey)

	first, err := f.challenge.RequestChallenge(ctx, address)
	require.NoError(t, err)
	second, err := f.challenge.RequestChallenge(ctx, address)
	require.NoError(t, err)
	require.NotEqual(t, first.Nonce, second.Nonce)

	sig, err := eth.SignPersonal(first.Message, f.issuerKey)
	require.NoError(t, err)
	_, err = f.challenge.VerifySignature(ctx, address, sig, first.Message)
	require.ErrorIs(t, err, core.ErrInvalidMessage)
}

func TestVerifySignatureFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid address", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.challenge.RequestChallenge(ctx, "0x123")
		require.ErrorIs(t, err, core.ErrInvalidAddress)
	})

	t.Run("no challenge", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.challenge.VerifySignature(ctx, eth.AddressOf(f.issuerKey), "0x00", "msg")
		require.ErrorIs(t, err, core.ErrChallengeMissing)
	})

	t.Run("malformed signature", func(t *testing.T) {
		f := newFixture(t)
		address := eth.AddressOf(f.issuerKey)
		ch, err := f.challenge.RequestChallenge(ctx, address)
		require.NoError(t, err)

		_, err = f.challenge.VerifySignature(ctx, address, "0xdeadbeef", ch.Message)
		requireKind(t, err, core.KindInvalidSignature)

		// Failed attempts keep the challenge.
		_, err = f.challenges.Get(ctx, address)
		require.NoError(t, err)
		assert.Len(t, f.audits(core.ActionSignatureVerified, core.AuditFailure), 1)
	})

	t.Run("signed by another key", func(t *testing.T) {
		f := newFixture(t)
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		address := eth.AddressOf(f.issuerKey)
		ch, err := f.challenge.RequestChallenge(ctx, address)
		require.NoError(t, err)

		sig, err := eth.SignPersonal(ch.Message, other)
		require.NoError(t, err)
		_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
		require.ErrorIs(t, err, core.ErrSignerMismatch)
	})

	t.Run("not an issuer on the ledger", func(t *testing.T) {
		f := newFixture(t)
		address := eth.AddressOf(f.issuerKey)
		f.ledger.SetIssuer(address, false)
		ch, err := f.challenge.RequestChallenge(ctx, address)
		require.NoError(t, err)

		sig, err := eth.SignPersonal(ch.Message, f.issuerKey)
		require.NoError(t, err)
		_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
		require.ErrorIs(t, err, core.ErrNotValidIssuer)
	})

	t.Run("wallet not mapped locally", func(t *testing.T) {
		f := newFixture(t)
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		address := eth.AddressOf(key)
		f.ledger.SetIssuer(address, true)
		ch, err := f.challenge.RequestChallenge(ctx, address)
		require.NoError(t, err)

		sig, err := eth.SignPersonal(ch.Message, key)
		require.NoError(t, err)
		_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
		require.ErrorIs(t, err, core.ErrWalletNotFound)
	})

	t.Run("wallet owner is not an issuer", func(t *testing.T) {
		f := newFixture(t)
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		f.addWallet(f.owner, key)
		address := eth.AddressOf(key)
		ch, err := f.challenge.RequestChallenge(ctx, address)
		require.NoError(t, err)

		sig, err := eth.SignPersonal(ch.Message, key)
		require.NoError(t, err)
		_, err = f.challenge.VerifySignature(ctx, address, sig, ch.Message)
		require.ErrorIs(t, err, core.ErrNotIssuer)
	})
}
