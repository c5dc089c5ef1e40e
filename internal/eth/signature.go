// Package eth holds the Ethereum primitives the services need: address
// normalisation and EIP-191 personal_sign recovery.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrMalformedKey       = errors.New("malformed private key")
)

// IsAddress reports whether s is a 20 byte hex address with 0x prefix.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress lower-cases a valid address.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RecoverPersonal returns the address that produced sig over message using
// the personal_sign scheme. Both 27/28 and 0/1 recovery ids are accepted.
func RecoverPersonal(message string, sig string) (common.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", ErrMalformedSignature)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes: %w", ErrMalformedSignature)
	}

	sigCopy := make([]byte, len(raw))
	copy(sigCopy, raw)
	if sigCopy[crypto.RecoveryIDOffset] >= 27 {
		sigCopy[crypto.RecoveryIDOffset] -= 27
	}
	if sigCopy[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", ErrMalformedSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonal reports whether sig over message was produced by address.
func VerifyPersonal(message, sig, address string) (bool, error) {
	recovered, err := RecoverPersonal(message, sig)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered.Hex(), address), nil
}

// SignPersonal signs message with key the way a wallet's personal_sign does,
// returning a 0x-prefixed signature with a 27/28 recovery id.
func SignPersonal(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// ParsePrivateKey accepts a hex key with or without 0x prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return key, nil
}

// AddressOf returns the normalised address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return NormalizeAddress(crypto.PubkeyToAddress(key.PublicKey).Hex())
}
