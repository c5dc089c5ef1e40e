package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
)

// SigningGrant is returned after a wallet holder proved control of an issuer
// wallet.
type SigningGrant struct {
	Token     string       `json:"signingToken"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *core.User   `json:"-"`
	Wallet    *core.Wallet `json:"-"`
}

// ChallengeService handles the wallet challenge/response flow
type ChallengeService struct {
	challenges ports.ChallengeStore
	store      ports.Store
	ledger     ports.Ledger
	tokenizer  ports.Tokenizer
	audit      auditor
	logger     *zap.Logger
	metrics    *metrics.Collector

	challengeTTL time.Duration
	signingTTL   time.Duration
	now          func() time.Time
}

// NewChallengeService creates a new challenge service
func NewChallengeService(d Deps, challenges ports.ChallengeStore, signingTTL time.Duration) *ChallengeService {
	if signingTTL <= 0 {
		signingTTL = core.DefaultSigningTTL
	}
	logger := d.logger("challenge")
	return &ChallengeService{
		challenges:   challenges,
		store:        d.Store,
		ledger:       d.Ledger,
		tokenizer:    d.Tokenizer,
		audit:        newAuditor(d, logger),
		logger:       logger,
		metrics:      d.Metrics,
		challengeTTL: core.ChallengeTTL,
		signingTTL:   signingTTL,
		now:          time.Now,
	}
}

// RequestChallenge issues a fresh challenge for address, replacing any live one
func (s *ChallengeService) RequestChallenge(ctx context.Context, address string) (*core.ChallengeMessage, error) {
	if !eth.IsAddress(address) {
		return nil, core.ErrInvalidAddress
	}

	now := s.now()
	ch := &core.Challenge{
		Address:   eth.NormalizeAddress(address),
		Nonce:     uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}
	s.metrics.CountChallenge("issued")

	return &core.ChallengeMessage{
		Message:   ch.Message(),
		Nonce:     ch.Nonce,
		ExpiresAt: ch.ExpiresAt,
	}, nil
}

// VerifySignature checks a signed challenge and mints a signing capability.
// The challenge is only consumed once every check has passed.
func (s *ChallengeService) VerifySignature(ctx context.Context, address, signature, message string) (*SigningGrant, error) {
	if !eth.IsAddress(address) {
		return nil, core.ErrInvalidAddress
	}
	address = eth.NormalizeAddress(address)

	ch, err := s.challenges.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	grant, err := s.verify(ctx, ch, signature, message)
	if err != nil {
		s.metrics.CountChallenge("rejected")
		s.audit.record(ctx, core.NewAuditEntry("", core.ActionSignatureVerified, core.ResourceWallet, address, core.AuditFailure,
			map[string]string{"walletAddress": address}).WithError(err))
		return nil, err
	}

	s.metrics.CountChallenge("verified")
	s.audit.record(ctx, core.NewAuditEntry(grant.User.ID, core.ActionSignatureVerified, core.ResourceWallet, grant.Wallet.ID, core.AuditSuccess,
		map[string]string{"walletAddress": address}))
	s.logger.Info("wallet signature verified", zap.String("address", address), zap.String("user", grant.User.ID))
	return grant, nil
}

func (s *ChallengeService) verify(ctx context.Context, ch *core.Challenge, signature, message string) (*SigningGrant, error) {
	now := s.now()
	if ch.Expired(now) {
		if err := s.challenges.Delete(ctx, ch.Address); err != nil {
			s.logger.Warn("failed to delete expired challenge", zap.String("address", ch.Address), zap.Error(err))
		}
		s.metrics.CountChallenge("expired")
		return nil, core.ErrChallengeExpired
	}

	if message != ch.Message() {
		return nil, core.ErrInvalidMessage
	}

	signer, err := eth.RecoverPersonal(message, signature)
	if err != nil {
		return nil, core.Wrap(core.KindInvalidSignature, core.ErrInvalidSignature.Msg, err)
	}
	if !core.SameWallet(signer.Hex(), ch.Address) {
		return nil, core.ErrSignerMismatch
	}

	valid, err := s.ledger.IsIssuerValid(ctx, ch.Address)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, core.ErrNotValidIssuer
	}

	wallet, err := s.store.ActiveWalletByAddress(ctx, ch.Address)
	if err != nil {
		return nil, err
	}
	user, err := s.store.UserByID(ctx, wallet.UserID)
	if err != nil {
		return nil, err
	}
	if user.Role != core.RoleIssuer {
		return nil, core.ErrNotIssuer
	}

	consumed, err := s.challenges.Consume(ctx, ch.Address, ch.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !consumed {
		// Another request used or replaced the challenge in the meantime.
		return nil, core.ErrChallengeMissing
	}

	capability := &core.Capability{
		Kind:          core.CapabilitySigning,
		UserID:        user.ID,
		Email:         user.Email,
		Role:          user.Role,
		WalletAddress: wallet.Address,
		WalletID:      wallet.ID,
		Purpose:       core.PurposeSigning,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.signingTTL),
	}
	token, err := s.tokenizer.CapabilityToToken(capability)
	if err != nil {
		return nil, fmt.Errorf("failed to create signing token: %w", err)
	}

	return &SigningGrant{
		Token:     token,
		ExpiresAt: capability.ExpiresAt,
		User:      user,
		Wallet:    wallet,
	}, nil
}

// isNotFound reports whether err is classified as a missing resource.
func isNotFound(err error) bool {
	var e *core.Error
	return errors.As(err, &e) && e.Kind == core.KindNotFound
}
