package http

import (
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/service"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      core.Role `json:"role"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserView(u *core.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type issuerView struct {
	*userView
	WalletAddresses []string `json:"walletAddresses"`
}

func newIssuerView(s *service.IssuerSummary) issuerView {
	return issuerView{userView: newUserView(&s.User), WalletAddresses: s.Wallets}
}

type walletView struct {
	ID            string     `json:"id"`
	WalletAddress string     `json:"walletAddress"`
	UserID        string     `json:"userId"`
	Active        bool       `json:"isActive"`
	TxHash        string     `json:"txHash,omitempty"`
	RevokedTxHash string     `json:"revokedTxHash,omitempty"`
	MappedAt      time.Time  `json:"mappedAt"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
}

func newWalletView(w *core.Wallet) *walletView {
	if w == nil {
		return nil
	}
	return &walletView{
		ID:            w.ID,
		WalletAddress: w.Address,
		UserID:        w.UserID,
		Active:        w.Active,
		TxHash:        w.MappedTx,
		RevokedTxHash: w.RevokedTx,
		MappedAt:      w.CreatedAt,
		RevokedAt:     w.RevokedAt,
	}
}

type certificateView struct {
	ID                string     `json:"id"`
	Hash              string     `json:"hash"`
	CertificateNumber string     `json:"certificateNumber"`
	RecipientName     string     `json:"recipientName"`
	CourseName        string     `json:"courseName"`
	IssueDate         time.Time  `json:"issueDate"`
	IssuerID          string     `json:"issuerId"`
	TxHash            string     `json:"txHash"`
	Revoked           bool       `json:"isRevoked"`
	RevokedAt         *time.Time `json:"revokedAt,omitempty"`
	RevocationReason  string     `json:"revocationReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func newCertificateView(c *core.Certificate) certificateView {
	return certificateView{
		ID:                c.ID,
		Hash:              c.Hash,
		CertificateNumber: c.Number,
		RecipientName:     c.RecipientName,
		CourseName:        c.CourseName,
		IssueDate:         c.IssueDate,
		IssuerID:          c.IssuerID,
		TxHash:            c.TxRef,
		Revoked:           c.Revoked,
		RevokedAt:         c.RevokedAt,
		RevocationReason:  c.RevocationReason,
		CreatedAt:         c.CreatedAt,
	}
}
