package service

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// bulkConcurrency bounds parallel verifications within one bulk request.
const bulkConcurrency = 8

// VerificationService reconstructs the trust status of certificates from
// local records and live ledger reads. It never writes to the ledger.
type VerificationService struct {
	store   ports.Store
	ledger  ports.Ledger
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewVerificationService(d Deps) *VerificationService {
	return &VerificationService{
		store:   d.Store,
		ledger:  d.Ledger,
		logger:  d.logger("verification"),
		metrics: d.Metrics,
	}
}

// VerifyOne returns the status of a single hash. The checks run in a fixed
// order and the first one that applies decides the result.
func (s *VerificationService) VerifyOne(ctx context.Context, hash string) (*core.VerificationResult, error) {
	if !core.ValidHash(hash) {
		return nil, core.ErrInvalidHash
	}
	res, err := s.verify(ctx, core.NormalizeHash(hash))
	if err != nil {
		return nil, err
	}
	s.metrics.CountVerification(string(res.Status))
	return res, nil
}

func (s *VerificationService) verify(ctx context.Context, hash string) (*core.VerificationResult, error) {
	cert, err := s.store.CertificateByHash(ctx, hash)
	if isNotFound(err) {
		return &core.VerificationResult{
			Status:  core.StatusNotFound,
			Message: "Certificate not found in database",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	record, err := s.ledger.GetCertificateRecord(ctx, hash)
	if err != nil {
		s.logger.Warn("ledger read failed", zap.String("hash", hash), zap.Error(err))
		return known(core.StatusChainError, "Failed to verify on blockchain"), nil
	}
	if !record.Exists {
		return known(core.StatusNotOnChain, "Certificate not found on blockchain"), nil
	}

	// Local revocation wins over anything the chain says.
	if cert.Revoked {
		res := known(core.StatusRevoked, "Certificate has been revoked")
		res.RevokedAt = cert.RevokedAt
		res.RevocationReason = cert.RevocationReason
		return res, nil
	}

	wallet, err := s.store.WalletByID(ctx, cert.IssuerWalletID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if wallet == nil || !wallet.Active {
		return known(core.StatusIssuerRevoked, "Issuer wallet has been revoked"), nil
	}

	valid, err := s.ledger.IsIssuerValid(ctx, wallet.Address)
	if err != nil {
		s.logger.Warn("ledger read failed", zap.String("address", wallet.Address), zap.Error(err))
		return known(core.StatusChainError, "Failed to verify issuer on blockchain"), nil
	}
	if !valid {
		return known(core.StatusIssuerInvalid, "Issuer is no longer valid on blockchain"), nil
	}

	if !record.IsValid {
		return known(core.StatusInvalidOnChain, "Certificate is invalid on blockchain"), nil
	}

	return &core.VerificationResult{
		Status:  core.StatusValid,
		Exists:  true,
		Valid:   true,
		Message: "Certificate is valid",
		Certificate: &core.VerifiedCertificate{
			CertificateNumber: cert.Number,
			RecipientName:     cert.RecipientName,
			CourseName:        cert.CourseName,
			IssueDate:         cert.IssueDate,
			IssuedAt:          record.IssuedAt,
			TxRef:             cert.TxRef,
		},
	}, nil
}

func known(status core.VerificationStatus, message string) *core.VerificationResult {
	return &core.VerificationResult{Status: status, Exists: true, Message: message}
}

// VerifyBulk verifies up to core.MaxBulkHashes hashes. The whole batch is
// rejected before any lookup if one hash is malformed. Results keep the input
// order and a failing hash becomes an ERROR entry instead of failing the batch.
func (s *VerificationService) VerifyBulk(ctx context.Context, hashes []string) ([]core.VerificationResult, core.BulkSummary, error) {
	if len(hashes) == 0 {
		return nil, core.BulkSummary{}, core.E(core.KindValidation, "hashes must be a non-empty array")
	}
	if len(hashes) > core.MaxBulkHashes {
		return nil, core.BulkSummary{}, core.E(core.KindValidation, fmt.Sprintf("maximum %d hashes allowed per request", core.MaxBulkHashes))
	}
	for _, h := range hashes {
		if !core.ValidHash(h) {
			return nil, core.BulkSummary{}, core.E(core.KindValidation, "invalid hash format: "+h)
		}
	}

	start := time.Now()
	results := make([]core.VerificationResult, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, h := range hashes {
		i, h := i, h
		g.Go(func() error {
			results[i] = s.verifyEntry(gctx, h)
			return nil
		})
	}
	_ = g.Wait()

	summary := core.Summarize(results)
	s.logger.Debug("bulk verification finished",
		zap.Int("total", summary.Total),
		zap.Int("valid", summary.Valid),
		zap.Duration("duration", time.Since(start)))
	return results, summary, nil
}

// verifyEntry never fails: errors and panics become ERROR results.
func (s *VerificationService) verifyEntry(ctx context.Context, hash string) (res core.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during verification", zap.String("hash", hash), zap.Any("panic", r))
			res = core.VerificationResult{Hash: hash, Status: core.StatusError, Message: "Verification failed"}
		}
	}()

	out, err := s.verify(ctx, core.NormalizeHash(hash))
	if err != nil {
		s.logger.Warn("verification failed", zap.String("hash", hash), zap.Error(err))
		return core.VerificationResult{Hash: hash, Status: core.StatusError, Message: "Verification failed"}
	}
	s.metrics.CountVerification(string(out.Status))
	out.Hash = hash
	return *out
}
