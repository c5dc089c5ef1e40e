package core

import (
	"encoding/json"
	"time"
)

// FileTypePDF is the only artifact type produced today.
const FileTypePDF = "PDF"

// Certificate is the anchored certificate record. Only the revocation fields
// change after creation.
type Certificate struct {
	ID               string
	Hash             string
	Number           string
	RecipientName    string
	RecipientEmail   string
	CourseName       string
	IssueDate        time.Time
	IssuerID         string
	OwnerID          string
	IssuerWalletID   string
	TxRef            string
	Nonce            string
	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason string
	RevocationTxRef  string
	CreatedAt        time.Time
}

// CertificateFile is a stored artifact of a certificate.
type CertificateFile struct {
	ID            string
	CertificateID string
	FileType      string
	Path          string
	SizeBytes     int64
	MimeType      string
	CreatedAt     time.Time
}

// CertificateInput is what an issuer supplies to mint a certificate.
type CertificateInput struct {
	OwnerName  string `json:"ownerName"`
	OwnerEmail string `json:"ownerEmail,omitempty"`
	CourseName string `json:"courseName"`
	OwnerID    string `json:"ownerId"`
}

// IssuedCertificate is the outcome of a successful issuance.
type IssuedCertificate struct {
	CertificateID string `json:"certificateId"`
	Hash          string `json:"hash"`
	TxRef         string `json:"txHash"`
}

// HashInput carries the business fields bound into a certificate hash.
type HashInput struct {
	OwnerName    string
	OwnerEmail   string
	CourseName   string
	IssuerID     string
	IssuerWallet string
	IssuedAt     string // RFC 3339
}

// HashResult is a derived hash and the nonce that went into it.
type HashResult struct {
	Hash  string
	Nonce string
}

// DocumentData is the content rendered onto a certificate document.
type DocumentData struct {
	OwnerName  string
	CourseName string
	IssuerName string
	IssuedAt   time.Time
	Hash       string
}

// RevocationType distinguishes revocation records.
type RevocationType string

const (
	RevocationWallet      RevocationType = "WALLET"
	RevocationCertificate RevocationType = "CERTIFICATE"
)

// Revocation is the append-only record of a revocation.
type Revocation struct {
	ID            string
	Type          RevocationType
	WalletID      string
	CertificateID string
	RevokedBy     string
	Reason        string
	TxRef         string
	CreatedAt     time.Time
}

// AuditResult is the outcome recorded on an audit entry.
type AuditResult string

const (
	AuditSuccess AuditResult = "SUCCESS"
	AuditFailure AuditResult = "FAILURE"
)

// Audit actions.
const (
	ActionIssuerCreated     = "ISSUER_CREATED"
	ActionOwnerCreated      = "OWNER_CREATED"
	ActionUserLogin         = "USER_LOGIN"
	ActionWalletMapped      = "WALLET_MAPPED"
	ActionWalletRevoked     = "WALLET_REVOKED"
	ActionSignatureVerified = "WALLET_SIGNATURE_VERIFIED"
	ActionCertIssued        = "CERTIFICATE_ISSUED"
	ActionAnchorOrphaned    = "CERTIFICATE_ANCHOR_ORPHANED"
	ActionCertRevoked       = "CERTIFICATE_REVOKED"
)

// Audit resource types.
const (
	ResourceUser        = "USER"
	ResourceWallet      = "WALLET"
	ResourceCertificate = "CERTIFICATE"
)

// AuditEntry is never mutated or deleted once written.
type AuditEntry struct {
	ID           string          `json:"id"`
	ActorID      string          `json:"actorId,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Result       AuditResult     `json:"result"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewAuditEntry builds an entry, marshalling metadata when given.
func NewAuditEntry(actor, action, resourceType, resourceID string, result AuditResult, metadata any) *AuditEntry {
	e := &AuditEntry{
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       result,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			e.Metadata = raw
		}
	}
	return e
}

// WithError records the failure reason on the entry.
func (e *AuditEntry) WithError(err error) *AuditEntry {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
