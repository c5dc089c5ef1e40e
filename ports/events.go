package ports

import (
	"context"

	"github.com/layer-3/certify/core"
)

// OrphanedAnchor describes a confirmed ledger write whose local transaction
// rolled back.
type OrphanedAnchor struct {
	Hash     string `json:"hash"`
	Nonce    string `json:"nonce"`
	TxRef    string `json:"txHash"`
	IssuerID string `json:"issuerId"`
	WalletID string `json:"walletId"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// EventPublisher publishes events to notify other instances and operators
type EventPublisher interface {
	PublishAudit(ctx context.Context, entry *core.AuditEntry) error
	PublishOrphanedAnchor(ctx context.Context, orphan OrphanedAnchor) error
}
