package ports

import (
	"context"

	"github.com/layer-3/certify/core"
)

// Reader holds the lookups available both inside and outside a transaction.
// Missing rows are reported with the matching core NotFound sentinel.
type Reader interface {
	UserByID(ctx context.Context, id string) (*core.User, error)
	UserByEmail(ctx context.Context, email string) (*core.User, error)
	ListUsersByRole(ctx context.Context, role core.Role) ([]core.User, error)

	WalletByID(ctx context.Context, id string) (*core.Wallet, error)
	WalletByAddress(ctx context.Context, address string) (*core.Wallet, error)
	ActiveWalletByAddress(ctx context.Context, address string) (*core.Wallet, error)
	ListWalletsByUser(ctx context.Context, userID string) ([]core.Wallet, error)

	CertificateByID(ctx context.Context, id string) (*core.Certificate, error)
	CertificateByHash(ctx context.Context, hash string) (*core.Certificate, error)
	ListCertificatesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]core.Certificate, error)
	CertificateFile(ctx context.Context, certificateID, fileType string) (*core.CertificateFile, error)
}

// Tx is a unit of work. Everything written through it commits or rolls back
// together.
type Tx interface {
	Reader

	// LockWallet loads a wallet and holds its row lock until the transaction ends.
	LockWallet(ctx context.Context, id string) (*core.Wallet, error)
	// LockCertificateByHash loads a certificate and holds its row lock.
	LockCertificateByHash(ctx context.Context, hash string) (*core.Certificate, error)

	CreateUser(ctx context.Context, u *core.User) error
	CreateWallet(ctx context.Context, w *core.Wallet) error
	UpdateWallet(ctx context.Context, w *core.Wallet) error
	CreateCertificate(ctx context.Context, c *core.Certificate) error
	UpdateCertificateRevocation(ctx context.Context, c *core.Certificate) error
	CreateCertificateFile(ctx context.Context, f *core.CertificateFile) error
	CreateRevocation(ctx context.Context, r *core.Revocation) error
	AppendAudit(ctx context.Context, e *core.AuditEntry) error
}

// Store is the persistence boundary.
type Store interface {
	Reader

	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// AppendAudit writes an entry on its own, independent of any open
	// transaction. Used for failure entries after a rollback.
	AppendAudit(ctx context.Context, e *core.AuditEntry) error
}
