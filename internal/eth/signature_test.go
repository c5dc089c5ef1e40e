package eth

import (
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecoverPersonal(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := "Sign this message to authorize certificate issuance: abc"
	sig, err := SignPersonal(msg, key)
	require.NoError(t, err)

	recovered, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)

	ok, err := VerifyPersonal(msg, sig, AddressOf(key))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPersonal(msg+"x", sig, AddressOf(key))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoverPersonalRejectsMalformed(t *testing.T) {
	_, err := RecoverPersonal("m", "0x1234")
	assert.ErrorIs(t, err, ErrMalformedSignature)

	_, err = RecoverPersonal("m", "not-hex")
	assert.ErrorIs(t, err, ErrMalformedSignature)

	bad := "0x" + strings.Repeat("00", 64) + "05"
	_, err = RecoverPersonal("m", bad)
	assert.ErrorIs(t, err, ErrMalformedSignature)
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, IsAddress("0xABCDEFabcdef0123456789abcdefABCDEF012345"))
	assert.False(t, IsAddress("ABCDEFabcdef0123456789abcdefABCDEF012345"))
	assert.False(t, IsAddress("0x1234"))
	assert.Equal(t, "0xabcdef", NormalizeAddress(" 0xABCDEF "))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	parsed, err := ParsePrivateKey("0x" + strings.TrimPrefix(hexKey(key), "0x"))
	require.NoError(t, err)
	assert.Equal(t, AddressOf(key), AddressOf(parsed))

	_, err = ParsePrivateKey("zz")
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func hexKey(key *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSA(key))
}
