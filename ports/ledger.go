package ports

import (
	"context"
	"crypto/ecdsa"

	"github.com/layer-3/certify/core"
)

// Ledger is the gateway to the wallet authorization registry and the
// certificate registry. Write methods return only once the transaction is
// confirmed; any error means the write must be treated as not applied.
type Ledger interface {
	IsIssuerValid(ctx context.Context, address string) (bool, error)
	GetCertificateRecord(ctx context.Context, hash string) (*core.CertificateRecord, error)

	MapWallet(ctx context.Context, address string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error)
	RevokeWallet(ctx context.Context, address string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error)
	StoreCertificateHash(ctx context.Context, hash string, issuer *ecdsa.PrivateKey) (*core.TxReceipt, error)
	RevokeCertificate(ctx context.Context, hash string, admin *ecdsa.PrivateKey) (*core.TxReceipt, error)
}
