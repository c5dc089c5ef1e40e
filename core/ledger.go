package core

import (
	"github.com/shopspring/decimal"
)

// TxReceipt describes a confirmed ledger write.
type TxReceipt struct {
	TxRef       string          `json:"txHash"`
	BlockNumber uint64          `json:"blockNumber"`
	GasUsed     uint64          `json:"gasUsed"`
	Fee         decimal.Decimal `json:"fee"` // In ether
}

// CertificateRecord is the ledger's view of a certificate hash.
type CertificateRecord struct {
	Exists    bool
	IsValid   bool
	Issuer    string
	IssuedAt  int64
	Revoked   bool
	RevokedAt int64
}
