package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Stages of an issuance, reported with orphaned anchors.
const (
	stageLedger   = "ledger"
	stageArtifact = "artifact"
	stageStorage  = "storage"
	stagePersist  = "persist"
)

// IssueRequest carries everything an issuance needs. Caller is the session
// capability of the authenticated issuer.
type IssueRequest struct {
	Caller       *core.Capability
	SigningToken string
	ChainKey     *ecdsa.PrivateKey
	Input        core.CertificateInput
}

// IssuanceService mints certificates: it anchors the hash on the ledger and
// records the certificate and its document in one local transaction.
type IssuanceService struct {
	store     ports.Store
	ledger    ports.Ledger
	tokenizer ports.Tokenizer
	events    ports.EventPublisher
	hasher    ports.Hasher
	renderer  ports.ArtifactRenderer
	files     ports.FileStore
	audit     auditor
	logger    *zap.Logger
	metrics   *metrics.Collector

	now func() time.Time
}

func NewIssuanceService(d Deps, hasher ports.Hasher, renderer ports.ArtifactRenderer, files ports.FileStore) *IssuanceService {
	logger := d.logger("issuance")
	return &IssuanceService{
		store:     d.Store,
		ledger:    d.Ledger,
		tokenizer: d.Tokenizer,
		events:    d.Events,
		hasher:    hasher,
		renderer:  renderer,
		files:     files,
		audit:     newAuditor(d, logger),
		logger:    logger,
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

// issuance tracks how far a transaction got, so a failure can be classified.
type issuance struct {
	hash   core.HashResult
	anchor *core.TxReceipt
	path   string
	stage  string
	wallet string
	result *core.IssuedCertificate
	entry  *core.AuditEntry
}

// Issue mints one certificate. A failure after the ledger confirmed the
// anchor leaves an orphaned record on chain, which is audited and announced
// for reconciliation.
func (s *IssuanceService) Issue(ctx context.Context, req IssueRequest) (*core.IssuedCertificate, error) {
	signing, err := s.guard(req)
	if err != nil {
		s.metrics.CountIssuance("rejected")
		return nil, err
	}

	st := &issuance{wallet: signing.WalletAddress}
	err = s.store.InTx(ctx, func(tx ports.Tx) error {
		return s.issue(ctx, tx, req, signing, st)
	})
	if err != nil {
		if st.anchor != nil {
			s.orphaned(ctx, req.Caller, signing, st, err)
			s.metrics.CountIssuance("orphaned")
		} else {
			s.audit.record(ctx, core.NewAuditEntry(req.Caller.UserID, core.ActionCertIssued, core.ResourceCertificate, "", core.AuditFailure,
				map[string]string{"walletAddress": signing.WalletAddress, "ownerId": req.Input.OwnerID}).WithError(err))
			s.metrics.CountIssuance("failed")
		}
		return nil, err
	}

	s.audit.publish(ctx, st.entry)
	s.metrics.CountIssuance("success")
	s.logger.Info("certificate issued",
		zap.String("certificate", st.result.CertificateID),
		zap.String("hash", st.result.Hash),
		zap.String("tx", st.result.TxRef))
	return st.result, nil
}

// guard runs the entry checks in order; the first failure wins.
func (s *IssuanceService) guard(req IssueRequest) (*core.Capability, error) {
	if err := validateInput(req.Input); err != nil {
		return nil, err
	}
	if req.ChainKey == nil {
		return nil, core.E(core.KindValidation, "issuer private key is required")
	}

	now := s.now()
	if err := requireRole(req.Caller, now, core.RoleIssuer); err != nil {
		return nil, err
	}

	if req.SigningToken == "" {
		return nil, core.E(core.KindNotAuthorized, "issuer signature token required")
	}
	signing, err := s.tokenizer.TokenToCapability(req.SigningToken, core.CapabilitySigning)
	if err != nil {
		return nil, err
	}
	if err := signing.Validate(core.CapabilitySigning, now); err != nil {
		return nil, err
	}
	if signing.UserID != req.Caller.UserID {
		return nil, core.ErrTokenMismatch
	}

	if !core.SameWallet(eth.AddressOf(req.ChainKey), signing.WalletAddress) {
		return nil, core.ErrKeyMismatch
	}
	return signing, nil
}

// certificateNumber is the human readable certificate reference. The id
// suffix keeps numbers unique within one millisecond.
func certificateNumber(issuedAt time.Time, certID string) string {
	return fmt.Sprintf("CERT-%d-%s", issuedAt.UnixMilli(), strings.ToUpper(strings.ReplaceAll(certID, "-", "")[:8]))
}

func validateInput(in core.CertificateInput) error {
	var missing []string
	if strings.TrimSpace(in.OwnerName) == "" {
		missing = append(missing, "ownerName")
	}
	if strings.TrimSpace(in.CourseName) == "" {
		missing = append(missing, "courseName")
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		missing = append(missing, "ownerId")
	}
	if len(missing) > 0 {
		return core.E(core.KindValidation, "required fields: "+strings.Join(missing, ", "))
	}
	if in.OwnerEmail != "" && !emailPattern.MatchString(in.OwnerEmail) {
		return core.E(core.KindValidation, "invalid owner email")
	}
	return nil
}

func (s *IssuanceService) issue(ctx context.Context, tx ports.Tx, req IssueRequest, signing *core.Capability, st *issuance) error {
	wallet, err := tx.LockWallet(ctx, signing.WalletID)
	if err != nil {
		return err
	}
	if !wallet.Active || wallet.UserID != req.Caller.UserID {
		return core.ErrWalletNotFound
	}
	if !core.SameWallet(wallet.Address, signing.WalletAddress) {
		return core.ErrWalletMismatch
	}

	// Issuer status may have changed since the signing token was minted.
	valid, err := s.ledger.IsIssuerValid(ctx, wallet.Address)
	if err != nil {
		return err
	}
	if !valid {
		return core.ErrIssuerRevoked
	}

	issuer, err := tx.UserByID(ctx, req.Caller.UserID)
	if err != nil {
		return err
	}
	owner, err := tx.UserByID(ctx, req.Input.OwnerID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return core.E(core.KindNotFound, "owner not found")
		}
		return err
	}
	if owner.Role != core.RoleOwner {
		return core.E(core.KindValidation, "recipient is not an owner account")
	}

	issuedAt := s.now().UTC()
	document := core.DocumentData{
		OwnerName:  req.Input.OwnerName,
		CourseName: req.Input.CourseName,
		IssuerName: issuer.DisplayName(),
		IssuedAt:   issuedAt,
	}
	// Text the document cannot carry must fail before anything is anchored.
	if err := s.renderer.Printable(document); err != nil {
		return err
	}

	st.hash, err = s.hasher.Derive(core.HashInput{
		OwnerName:    req.Input.OwnerName,
		OwnerEmail:   req.Input.OwnerEmail,
		CourseName:   req.Input.CourseName,
		IssuerID:     issuer.ID,
		IssuerWallet: wallet.Address,
		IssuedAt:     issuedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to derive hash: %w", err)
	}

	// A collision means a broken nonce source or a replay; never retry.
	if _, err := tx.LockCertificateByHash(ctx, st.hash.Hash); err == nil {
		return core.ErrDuplicateHash
	} else if !errors.Is(err, core.ErrCertNotFound) {
		return err
	}

	st.stage = stageLedger
	st.anchor, err = s.ledger.StoreCertificateHash(ctx, st.hash.Hash, req.ChainKey)
	if err != nil {
		return err
	}

	st.stage = stageArtifact
	scan, err := s.renderer.ScanCode(st.hash.Hash)
	if err != nil {
		return err
	}
	document.Hash = st.hash.Hash
	doc, err := s.renderer.Document(document, scan)
	if err != nil {
		return err
	}

	st.stage = stageStorage
	certID := uuid.New().String()
	st.path, err = s.files.Save(ctx, certID+".pdf", doc)
	if err != nil {
		return err
	}

	st.stage = stagePersist
	cert := &core.Certificate{
		ID:             certID,
		Hash:           st.hash.Hash,
		Number:         certificateNumber(issuedAt, certID),
		RecipientName:  req.Input.OwnerName,
		RecipientEmail: req.Input.OwnerEmail,
		CourseName:     req.Input.CourseName,
		IssueDate:      issuedAt,
		IssuerID:       issuer.ID,
		OwnerID:        owner.ID,
		IssuerWalletID: wallet.ID,
		TxRef:          st.anchor.TxRef,
		Nonce:          st.hash.Nonce,
	}
	if err := tx.CreateCertificate(ctx, cert); err != nil {
		return err
	}
	if err := tx.CreateCertificateFile(ctx, &core.CertificateFile{
		CertificateID: certID,
		FileType:      core.FileTypePDF,
		Path:          st.path,
		SizeBytes:     int64(len(doc)),
		MimeType:      "application/pdf",
	}); err != nil {
		return err
	}

	st.entry = core.NewAuditEntry(issuer.ID, core.ActionCertIssued, core.ResourceCertificate, certID, core.AuditSuccess, map[string]any{
		"hash":          st.hash.Hash,
		"txHash":        st.anchor.TxRef,
		"blockNumber":   st.anchor.BlockNumber,
		"walletAddress": wallet.Address,
		"ownerId":       owner.ID,
	})
	if err := tx.AppendAudit(ctx, st.entry); err != nil {
		return err
	}

	st.result = &core.IssuedCertificate{
		CertificateID: certID,
		Hash:          st.hash.Hash,
		TxRef:         st.anchor.TxRef,
	}
	return nil
}

// orphaned records an anchor whose local transaction rolled back.
func (s *IssuanceService) orphaned(ctx context.Context, caller *core.Capability, signing *core.Capability, st *issuance, cause error) {
	ctx = context.WithoutCancel(ctx)

	if st.path != "" {
		if err := s.files.Remove(ctx, st.path); err != nil {
			s.logger.Warn("failed to remove document of orphaned anchor", zap.String("path", st.path), zap.Error(err))
		}
	}

	orphan := ports.OrphanedAnchor{
		Hash:     st.hash.Hash,
		Nonce:    st.hash.Nonce,
		TxRef:    st.anchor.TxRef,
		IssuerID: caller.UserID,
		WalletID: signing.WalletID,
		Stage:    st.stage,
		Reason:   cause.Error(),
	}

	s.logger.Error("certificate anchored on ledger without local record",
		zap.String("hash", orphan.Hash),
		zap.String("nonce", orphan.Nonce),
		zap.String("tx", orphan.TxRef),
		zap.String("stage", orphan.Stage),
		zap.Error(cause))

	s.audit.record(ctx, core.NewAuditEntry(caller.UserID, core.ActionAnchorOrphaned, core.ResourceCertificate, "", core.AuditFailure, map[string]string{
		"hash":          orphan.Hash,
		"nonce":         orphan.Nonce,
		"txHash":        orphan.TxRef,
		"stage":         orphan.Stage,
		"walletAddress": st.wallet,
	}).WithError(cause))

	if s.events == nil {
		return
	}
	if err := s.events.PublishOrphanedAnchor(ctx, orphan); err != nil {
		s.logger.Error("failed to publish orphaned anchor", zap.String("hash", orphan.Hash), zap.Error(err))
	}
}
