package service

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
)

// WalletService maps issuer wallets onto the authorization registry and
// revokes them. Local rows follow confirmed ledger writes only.
type WalletService struct {
	store  ports.Store
	ledger ports.Ledger
	audit  auditor
	logger *zap.Logger

	now func() time.Time
}

func NewWalletService(d Deps) *WalletService {
	logger := d.logger("wallet")
	return &WalletService{
		store:  d.Store,
		ledger: d.Ledger,
		audit:  newAuditor(d, logger),
		logger: logger,
		now:    time.Now,
	}
}

// MapWallet binds address to an issuer. An address can be bound once, ever.
func (s *WalletService) MapWallet(ctx context.Context, admin *core.Capability, userID, address string, key *ecdsa.PrivateKey) (*core.Wallet, error) {
	if err := requireRole(admin, s.now(), core.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, core.E(core.KindValidation, "userId is required")
	}
	if !eth.IsAddress(address) {
		return nil, core.ErrInvalidAddress
	}
	if key == nil {
		return nil, core.E(core.KindValidation, "admin private key is required")
	}
	address = eth.NormalizeAddress(address)

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != core.RoleIssuer {
		return nil, core.E(core.KindValidation, "user is not an issuer")
	}

	var wallet *core.Wallet
	var receipt *core.TxReceipt
	err = s.store.InTx(ctx, func(tx ports.Tx) error {
		// Claim the address before touching the ledger. The unique address
		// index makes a concurrent mapping fail here with ErrWalletTaken.
		wallet = &core.Wallet{
			Address: address,
			UserID:  user.ID,
			Active:  true,
		}
		if err := tx.CreateWallet(ctx, wallet); err != nil {
			return err
		}

		receipt, err = s.ledger.MapWallet(ctx, address, key)
		if err != nil {
			return err
		}

		wallet.MappedTx = receipt.TxRef
		if err := tx.UpdateWallet(ctx, wallet); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, core.NewAuditEntry(admin.UserID, core.ActionWalletMapped, core.ResourceWallet, wallet.ID, core.AuditSuccess, map[string]any{
			"walletAddress": address,
			"userId":        user.ID,
			"txHash":        receipt.TxRef,
			"blockNumber":   receipt.BlockNumber,
		}))
	})
	if err != nil {
		if receipt != nil {
			s.logger.Error("wallet mapped on ledger without local record",
				zap.String("address", address),
				zap.String("tx", receipt.TxRef),
				zap.Error(err))
		}
		s.audit.record(ctx, core.NewAuditEntry(admin.UserID, core.ActionWalletMapped, core.ResourceWallet, "", core.AuditFailure,
			map[string]string{"walletAddress": address, "userId": userID}).WithError(err))
		return nil, err
	}

	s.logger.Info("wallet mapped", zap.String("address", address), zap.String("user", user.ID), zap.String("tx", receipt.TxRef))
	return wallet, nil
}

// RevokeWallet deactivates an active wallet after the registry revoked it.
func (s *WalletService) RevokeWallet(ctx context.Context, admin *core.Capability, address, reason string, key *ecdsa.PrivateKey) (*core.Wallet, error) {
	if err := requireRole(admin, s.now(), core.RoleAdmin); err != nil {
		return nil, err
	}
	if !eth.IsAddress(address) {
		return nil, core.ErrInvalidAddress
	}
	if strings.TrimSpace(reason) == "" {
		return nil, core.E(core.KindValidation, "revocation reason is required")
	}
	if key == nil {
		return nil, core.E(core.KindValidation, "admin private key is required")
	}
	address = eth.NormalizeAddress(address)

	var wallet *core.Wallet
	var receipt *core.TxReceipt
	err := s.store.InTx(ctx, func(tx ports.Tx) error {
		found, err := tx.ActiveWalletByAddress(ctx, address)
		if err != nil {
			return err
		}
		wallet, err = tx.LockWallet(ctx, found.ID)
		if err != nil {
			return err
		}
		if !wallet.Active {
			return core.ErrWalletNotFound
		}

		receipt, err = s.ledger.RevokeWallet(ctx, address, key)
		if err != nil {
			return err
		}

		revokedAt := s.now().UTC()
		wallet.Active = false
		wallet.RevokedTx = receipt.TxRef
		wallet.RevokedAt = &revokedAt
		if err := tx.UpdateWallet(ctx, wallet); err != nil {
			return err
		}
		if err := tx.CreateRevocation(ctx, &core.Revocation{
			Type:      core.RevocationWallet,
			WalletID:  wallet.ID,
			RevokedBy: admin.UserID,
			Reason:    reason,
			TxRef:     receipt.TxRef,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, core.NewAuditEntry(admin.UserID, core.ActionWalletRevoked, core.ResourceWallet, wallet.ID, core.AuditSuccess, map[string]any{
			"walletAddress": address,
			"reason":        reason,
			"txHash":        receipt.TxRef,
			"blockNumber":   receipt.BlockNumber,
		}))
	})
	if err != nil {
		if receipt != nil {
			s.logger.Error("wallet revoked on ledger without local record",
				zap.String("address", address),
				zap.String("tx", receipt.TxRef),
				zap.Error(err))
		}
		s.audit.record(ctx, core.NewAuditEntry(admin.UserID, core.ActionWalletRevoked, core.ResourceWallet, "", core.AuditFailure,
			map[string]string{"walletAddress": address, "reason": reason}).WithError(err))
		return nil, err
	}

	s.logger.Info("wallet revoked", zap.String("address", address), zap.String("tx", receipt.TxRef))
	return wallet, nil
}

// GetWallet returns a wallet by address. Issuers only see their own wallets.
func (s *WalletService) GetWallet(ctx context.Context, caller *core.Capability, address string) (*core.Wallet, error) {
	if err := requireRole(caller, s.now(), core.RoleAdmin, core.RoleIssuer); err != nil {
		return nil, err
	}
	if !eth.IsAddress(address) {
		return nil, core.ErrInvalidAddress
	}
	wallet, err := s.store.WalletByAddress(ctx, eth.NormalizeAddress(address))
	if err != nil {
		return nil, err
	}
	if caller.Role != core.RoleAdmin && wallet.UserID != caller.UserID {
		return nil, core.ErrWalletNotFound
	}
	return wallet, nil
}

// ListWallets returns the caller's wallets, active and revoked.
func (s *WalletService) ListWallets(ctx context.Context, caller *core.Capability) ([]core.Wallet, error) {
	if err := requireRole(caller, s.now(), core.RoleAdmin, core.RoleIssuer); err != nil {
		return nil, err
	}
	return s.store.ListWalletsByUser(ctx, caller.UserID)
}
