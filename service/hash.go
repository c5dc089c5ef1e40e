package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
)

const hashFieldSeparator = "|"

// SHA256Hasher binds certificate fields and a fresh uuid nonce into a
// SHA-256 digest, so identical fields never produce the same hash.
type SHA256Hasher struct {
	nonce func() string
}

func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{nonce: func() string { return uuid.New().String() }}
}

var _ ports.Hasher = (*SHA256Hasher)(nil)

func (h *SHA256Hasher) Derive(in core.HashInput) (core.HashResult, error) {
	nonce := h.nonce()
	data := strings.Join([]string{
		in.OwnerName,
		in.OwnerEmail,
		in.CourseName,
		in.IssuerID,
		in.IssuerWallet,
		in.IssuedAt,
		nonce,
	}, hashFieldSeparator)

	sum := sha256.Sum256([]byte(data))
	return core.HashResult{Hash: hex.EncodeToString(sum[:]), Nonce: nonce}, nil
}
