package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// LoadSigningKey reads a PEM encoded P-256 key. An empty path generates an
// ephemeral key; tokens minted with it die with the process.
func LoadSigningKey(path string) (key *ecdsa.PrivateKey, ephemeral bool, err error) {
	if path == "" {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		return key, true, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read token key: %w", err)
	}
	key, err = jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse token key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, false, fmt.Errorf("token key must use P-256, got %s", key.Curve.Params().Name)
	}
	return key, false, nil
}
