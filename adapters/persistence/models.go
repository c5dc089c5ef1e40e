package persistence

import (
	"time"

	"github.com/layer-3/certify/core"
	"gorm.io/datatypes"
)

type userModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"index;not null"`
	FirstName    string
	LastName     string
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

type walletModel struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Address   string `gorm:"uniqueIndex;type:varchar(42);not null"`
	UserID    string `gorm:"index;type:varchar(36);not null"`
	Active    bool   `gorm:"not null;default:true"`
	MappedTx  string
	RevokedTx string
	CreatedAt time.Time
	RevokedAt *time.Time
}

func (walletModel) TableName() string { return "wallets" }

type certificateModel struct {
	ID               string `gorm:"primaryKey;type:varchar(36)"`
	Hash             string `gorm:"uniqueIndex;type:char(64);not null"`
	Number           string `gorm:"uniqueIndex;not null"`
	RecipientName    string `gorm:"not null"`
	RecipientEmail   string
	CourseName       string    `gorm:"not null"`
	IssueDate        time.Time `gorm:"not null"`
	IssuerID         string    `gorm:"index;type:varchar(36);not null"`
	OwnerID          string    `gorm:"index;type:varchar(36);not null"`
	IssuerWalletID   string    `gorm:"type:varchar(36);not null"`
	TxRef            string    `gorm:"not null"`
	Nonce            string    `gorm:"not null"`
	Revoked          bool      `gorm:"not null;default:false"`
	RevokedAt        *time.Time
	RevocationReason string
	RevocationTxRef  string
	CreatedAt        time.Time
}

func (certificateModel) TableName() string { return "certificates" }

type certificateFileModel struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	CertificateID string `gorm:"uniqueIndex:idx_certificate_file_type;type:varchar(36);not null"`
	FileType      string `gorm:"uniqueIndex:idx_certificate_file_type;not null"`
	Path          string `gorm:"not null"`
	SizeBytes     int64
	MimeType      string
	CreatedAt     time.Time
}

func (certificateFileModel) TableName() string { return "certificate_files" }

type revocationModel struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	Type          string `gorm:"not null"`
	WalletID      *string
	CertificateID *string
	RevokedBy     string `gorm:"not null"`
	Reason        string
	TxRef         string
	CreatedAt     time.Time
}

func (revocationModel) TableName() string { return "revocations" }

type auditModel struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	ActorID      string `gorm:"index"`
	Action       string `gorm:"index;not null"`
	ResourceType string `gorm:"not null"`
	ResourceID   string
	Result       string `gorm:"not null"`
	Metadata     datatypes.JSON
	Error        string
	CreatedAt    time.Time `gorm:"index"`
}

func (auditModel) TableName() string { return "audit_logs" }

// models lists every table owned by the store, in migration order.
func models() []any {
	return []any{
		&userModel{},
		&walletModel{},
		&certificateModel{},
		&certificateFileModel{},
		&revocationModel{},
		&auditModel{},
	}
}

func fromUser(u *core.User) *userModel {
	return &userModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (m *userModel) toCore() *core.User {
	return &core.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         core.Role(m.Role),
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromWallet(w *core.Wallet) *walletModel {
	return &walletModel{
		ID:        w.ID,
		Address:   w.Address,
		UserID:    w.UserID,
		Active:    w.Active,
		MappedTx:  w.MappedTx,
		RevokedTx: w.RevokedTx,
		CreatedAt: w.CreatedAt,
		RevokedAt: w.RevokedAt,
	}
}

func (m *walletModel) toCore() *core.Wallet {
	return &core.Wallet{
		ID:        m.ID,
		Address:   m.Address,
		UserID:    m.UserID,
		Active:    m.Active,
		MappedTx:  m.MappedTx,
		RevokedTx: m.RevokedTx,
		CreatedAt: m.CreatedAt,
		RevokedAt: m.RevokedAt,
	}
}

func fromCertificate(c *core.Certificate) *certificateModel {
	return &certificateModel{
		ID:               c.ID,
		Hash:             c.Hash,
		Number:           c.Number,
		RecipientName:    c.RecipientName,
		RecipientEmail:   c.RecipientEmail,
		CourseName:       c.CourseName,
		IssueDate:        c.IssueDate,
		IssuerID:         c.IssuerID,
		OwnerID:          c.OwnerID,
		IssuerWalletID:   c.IssuerWalletID,
		TxRef:            c.TxRef,
		Nonce:            c.Nonce,
		Revoked:          c.Revoked,
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
		RevocationTxRef:  c.RevocationTxRef,
		CreatedAt:        c.CreatedAt,
	}
}

func (m *certificateModel) toCore() *core.Certificate {
	return &core.Certificate{
		ID:               m.ID,
		Hash:             m.Hash,
		Number:           m.Number,
		RecipientName:    m.RecipientName,
		RecipientEmail:   m.RecipientEmail,
		CourseName:       m.CourseName,
		IssueDate:        m.IssueDate,
		IssuerID:         m.IssuerID,
		OwnerID:          m.OwnerID,
		IssuerWalletID:   m.IssuerWalletID,
		TxRef:            m.TxRef,
		Nonce:            m.Nonce,
		Revoked:          m.Revoked,
		RevokedAt:        m.RevokedAt,
		RevocationReason: m.RevocationReason,
		RevocationTxRef:  m.RevocationTxRef,
		CreatedAt:        m.CreatedAt,
	}
}

func (m *certificateFileModel) toCore() *core.CertificateFile {
	return &core.CertificateFile{
		ID:            m.ID,
		CertificateID: m.CertificateID,
		FileType:      m.FileType,
		Path:          m.Path,
		SizeBytes:     m.SizeBytes,
		MimeType:      m.MimeType,
		CreatedAt:     m.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
