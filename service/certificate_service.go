package service

import (
	"context"
	"crypto/ecdsa"
	"io"
	"strings"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Document is an opened certificate file. The caller closes Body.
type Document struct {
	Name      string
	MimeType  string
	SizeBytes int64
	Body      io.ReadCloser
}

// CertificateService revokes certificates and serves them to their owners.
type CertificateService struct {
	store  ports.Store
	ledger ports.Ledger
	files  ports.FileStore
	audit  auditor
	logger *zap.Logger

	now func() time.Time
}

func NewCertificateService(d Deps, files ports.FileStore) *CertificateService {
	logger := d.logger("certificate")
	return &CertificateService{
		store:  d.Store,
		ledger: d.Ledger,
		files:  files,
		audit:  newAuditor(d, logger),
		logger: logger,
		now:    time.Now,
	}
}

// RevokeCertificate revokes a certificate on the registry, then locally.
func (s *CertificateService) RevokeCertificate(ctx context.Context, admin *core.Capability, hash, reason string, key *ecdsa.PrivateKey) (*core.Certificate, error) {
	if err := requireRole(admin, s.now(), core.RoleAdmin); err != nil {
		return nil, err
	}
	if !core.ValidHash(hash) {
		return nil, core.ErrInvalidHash
	}
	if strings.TrimSpace(reason) == "" {
		return nil, core.E(core.KindValidation, "revocation reason is required")
	}
	if key == nil {
		return nil, core.E(core.KindValidation, "admin private key is required")
	}
	hash = core.NormalizeHash(hash)

	var cert *core.Certificate
	var receipt *core.TxReceipt
	err := s.store.InTx(ctx, func(tx ports.Tx) error {
		var err error
		cert, err = tx.LockCertificateByHash(ctx, hash)
		if err != nil {
			return err
		}
		if cert.Revoked {
			return core.ErrAlreadyRevoked
		}

		receipt, err = s.ledger.RevokeCertificate(ctx, hash, key)
		if err != nil {
			return err
		}

		revokedAt := s.now().UTC()
		cert.Revoked = true
		cert.RevokedAt = &revokedAt
		cert.RevocationReason = reason
		cert.RevocationTxRef = receipt.TxRef
		if err := tx.UpdateCertificateRevocation(ctx, cert); err != nil {
			return err
		}
		if err := tx.CreateRevocation(ctx, &core.Revocation{
			Type:          core.RevocationCertificate,
			CertificateID: cert.ID,
			RevokedBy:     admin.UserID,
			Reason:        reason,
			TxRef:         receipt.TxRef,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, core.NewAuditEntry(admin.UserID, core.ActionCertRevoked, core.ResourceCertificate, cert.ID, core.AuditSuccess, map[string]any{
			"hash":        hash,
			"reason":      reason,
			"txHash":      receipt.TxRef,
			"blockNumber": receipt.BlockNumber,
		}))
	})
	if err != nil {
		if receipt != nil {
			s.logger.Error("certificate revoked on ledger without local record",
				zap.String("hash", hash),
				zap.String("tx", receipt.TxRef),
				zap.Error(err))
		}
		s.audit.record(ctx, core.NewAuditEntry(admin.UserID, core.ActionCertRevoked, core.ResourceCertificate, "", core.AuditFailure,
			map[string]string{"hash": hash, "reason": reason}).WithError(err))
		return nil, err
	}

	s.logger.Info("certificate revoked", zap.String("certificate", cert.ID), zap.String("tx", receipt.TxRef))
	return cert, nil
}

// ListOwned pages through the caller's certificates, newest first.
func (s *CertificateService) ListOwned(ctx context.Context, owner *core.Capability, limit, offset int) ([]core.Certificate, error) {
	if err := requireRole(owner, s.now(), core.RoleOwner); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListCertificatesByOwner(ctx, owner.UserID, limit, offset)
}

// OpenDocument opens the PDF of a certificate for its owner or an admin.
// Other callers get NotFound so certificate ids cannot be enumerated.
func (s *CertificateService) OpenDocument(ctx context.Context, caller *core.Capability, certificateID string) (*Document, error) {
	if err := requireRole(caller, s.now(), core.RoleOwner, core.RoleAdmin); err != nil {
		return nil, err
	}
	cert, err := s.store.CertificateByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if caller.Role != core.RoleAdmin && cert.OwnerID != caller.UserID {
		return nil, core.ErrCertNotFound
	}

	file, err := s.store.CertificateFile(ctx, cert.ID, core.FileTypePDF)
	if err != nil {
		return nil, err
	}
	body, err := s.files.Open(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	return &Document{
		Name:      cert.Number + ".pdf",
		MimeType:  file.MimeType,
		SizeBytes: file.SizeBytes,
		Body:      body,
	}, nil
}
