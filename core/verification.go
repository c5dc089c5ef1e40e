package core

import (
	"regexp"
	"strings"
	"time"
)

// MaxBulkHashes bounds a bulk verification request.
const MaxBulkHashes = 100

var hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// ValidHash reports whether h is a 64 character hex digest.
func ValidHash(h string) bool {
	return hashPattern.MatchString(h)
}

// NormalizeHash lower-cases a hex digest.
func NormalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// VerificationStatus is the tag of a VerificationResult.
type VerificationStatus string

const (
	StatusNotFound       VerificationStatus = "NOT_FOUND"
	StatusChainError     VerificationStatus = "CHAIN_ERROR"
	StatusNotOnChain     VerificationStatus = "NOT_ON_CHAIN"
	StatusRevoked        VerificationStatus = "REVOKED"
	StatusIssuerRevoked  VerificationStatus = "ISSUER_REVOKED"
	StatusIssuerInvalid  VerificationStatus = "ISSUER_INVALID"
	StatusInvalidOnChain VerificationStatus = "INVALID_ON_CHAIN"
	StatusValid          VerificationStatus = "VALID"
	StatusError          VerificationStatus = "ERROR"
)

// VerifiedCertificate is the projection returned with a VALID result.
type VerifiedCertificate struct {
	CertificateNumber string    `json:"certificateNumber"`
	RecipientName     string    `json:"recipientName"`
	CourseName        string    `json:"courseName"`
	IssueDate         time.Time `json:"issueDate"`
	IssuedAt          int64     `json:"issuedAt"`
	TxRef             string    `json:"txHash"`
}

// VerificationResult is a tagged variant keyed by Status. RevokedAt and
// RevocationReason are set for REVOKED, Certificate for VALID.
type VerificationResult struct {
	Hash             string               `json:"hash,omitempty"`
	Status           VerificationStatus   `json:"status"`
	Exists           bool                 `json:"exists"`
	Valid            bool                 `json:"valid"`
	Message          string               `json:"message"`
	RevokedAt        *time.Time           `json:"revokedAt,omitempty"`
	RevocationReason string               `json:"revocationReason,omitempty"`
	Certificate      *VerifiedCertificate `json:"certificate,omitempty"`
}

// BulkSummary counts bulk verification outcomes.
type BulkSummary struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	NotFound int `json:"notFound"`
}

// Summarize counts results: invalid means known but not valid.
func Summarize(results []VerificationResult) BulkSummary {
	s := BulkSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Valid:
			s.Valid++
		case r.Exists:
			s.Invalid++
		default:
			s.NotFound++
		}
	}
	return s
}
