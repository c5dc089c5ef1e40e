// Package certify declares the operations the HTTP surface depends on. The
// implementations live in the service package.
package certify

import (
	"context"
	"crypto/ecdsa"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/service"
)

// Accounts covers password sessions and account provisioning
type Accounts interface {
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Me(ctx context.Context, caller *core.Capability) (*core.User, error)
	CreateIssuer(ctx context.Context, admin *core.Capability, in service.NewAccount) (*service.CreatedAccount, error)
	CreateOwner(ctx context.Context, caller *core.Capability, in service.NewAccount) (*service.CreatedAccount, error)
	ListIssuers(ctx context.Context, admin *core.Capability) ([]service.IssuerSummary, error)
}

// Challenges runs the wallet challenge/response flow
type Challenges interface {
	// RequestChallenge returns the message the wallet holder has to sign
	RequestChallenge(ctx context.Context, address string) (*core.ChallengeMessage, error)

	// VerifySignature consumes the live challenge and returns a signing token
	VerifySignature(ctx context.Context, address, signature, message string) (*service.SigningGrant, error)
}

// Issuer mints certificates
type Issuer interface {
	Issue(ctx context.Context, req service.IssueRequest) (*core.IssuedCertificate, error)
}

// Verifier answers public verification requests
type Verifier interface {
	VerifyOne(ctx context.Context, hash string) (*core.VerificationResult, error)
	VerifyBulk(ctx context.Context, hashes []string) ([]core.VerificationResult, core.BulkSummary, error)
}

// Wallets manages issuer wallet mappings
type Wallets interface {
	MapWallet(ctx context.Context, admin *core.Capability, userID, address string, key *ecdsa.PrivateKey) (*core.Wallet, error)
	RevokeWallet(ctx context.Context, admin *core.Capability, address, reason string, key *ecdsa.PrivateKey) (*core.Wallet, error)
	GetWallet(ctx context.Context, caller *core.Capability, address string) (*core.Wallet, error)
	ListWallets(ctx context.Context, caller *core.Capability) ([]core.Wallet, error)
}

// Certificates covers revocation and owner access to issued certificates
type Certificates interface {
	RevokeCertificate(ctx context.Context, admin *core.Capability, hash, reason string, key *ecdsa.PrivateKey) (*core.Certificate, error)
	ListOwned(ctx context.Context, owner *core.Capability, limit, offset int) ([]core.Certificate, error)
	OpenDocument(ctx context.Context, caller *core.Capability, certificateID string) (*service.Document, error)
}

var (
	_ Accounts     = (*service.AccountService)(nil)
	_ Challenges   = (*service.ChallengeService)(nil)
	_ Issuer       = (*service.IssuanceService)(nil)
	_ Verifier     = (*service.VerificationService)(nil)
	_ Wallets      = (*service.WalletService)(nil)
	_ Certificates = (*service.CertificateService)(nil)
)
