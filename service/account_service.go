package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const tempPasswordBytes = 9

// Session is the result of a successful login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"-"`
}

// NewAccount describes an account created by a privileged caller.
type NewAccount struct {
	Email     string
	FirstName string // Institution name for issuers
	LastName  string // Contact person for issuers
	Phone     string
	Website   string
}

// IssuerSummary is an issuer account with its active wallet addresses.
type IssuerSummary struct {
	User    core.User
	Wallets []string
}

// CreatedAccount carries the temporary password, which is never shown again.
type CreatedAccount struct {
	User         *core.User
	TempPassword string
}

// AccountService handles password logins and account provisioning.
type AccountService struct {
	store      ports.Store
	tokenizer  ports.Tokenizer
	audit      auditor
	logger     *zap.Logger
	sessionTTL time.Duration
	bcryptCost int

	now func() time.Time
}

func NewAccountService(d Deps, sessionTTL time.Duration) *AccountService {
	if sessionTTL <= 0 {
		sessionTTL = core.DefaultSessionTTL
	}
	logger := d.logger("account")
	return &AccountService{
		store:      d.Store,
		tokenizer:  d.Tokenizer,
		audit:      newAuditor(d, logger),
		logger:     logger,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Login checks credentials and mints a session capability.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, core.E(core.KindValidation, "email and password are required")
	}

	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrBadCredentials
		}
		return nil, err
	}
	if !user.Active {
		s.audit.record(ctx, core.NewAuditEntry(user.ID, core.ActionUserLogin, core.ResourceUser, user.ID, core.AuditFailure, nil).
			WithError(core.ErrAccountInactive))
		return nil, core.ErrAccountInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit.record(ctx, core.NewAuditEntry(user.ID, core.ActionUserLogin, core.ResourceUser, user.ID, core.AuditFailure, nil).
			WithError(core.ErrBadCredentials))
		return nil, core.ErrBadCredentials
	}

	now := s.now()
	capability := &core.Capability{
		Kind:      core.CapabilitySession,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	token, err := s.tokenizer.CapabilityToToken(capability)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	s.audit.record(ctx, core.NewAuditEntry(user.ID, core.ActionUserLogin, core.ResourceUser, user.ID, core.AuditSuccess,
		map[string]string{"role": string(user.Role)}))
	return &Session{Token: token, ExpiresAt: capability.ExpiresAt, User: user}, nil
}

// Me returns the caller's account.
func (s *AccountService) Me(ctx context.Context, caller *core.Capability) (*core.User, error) {
	if err := caller.Validate(core.CapabilitySession, s.now()); err != nil {
		return nil, err
	}
	return s.store.UserByID(ctx, caller.UserID)
}

// CreateIssuer provisions an institution account. Its wallet is mapped
// separately.
func (s *AccountService) CreateIssuer(ctx context.Context, admin *core.Capability, in NewAccount) (*CreatedAccount, error) {
	if err := requireRole(admin, s.now(), core.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, core.E(core.KindValidation, "institution name is required")
	}
	return s.create(ctx, admin, core.RoleIssuer, core.ActionIssuerCreated, in)
}

// CreateOwner provisions a certificate recipient account.
func (s *AccountService) CreateOwner(ctx context.Context, caller *core.Capability, in NewAccount) (*CreatedAccount, error) {
	if err := requireRole(caller, s.now(), core.RoleAdmin, core.RoleIssuer); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, core.E(core.KindValidation, "first name is required")
	}
	return s.create(ctx, caller, core.RoleOwner, core.ActionOwnerCreated, in)
}

func (s *AccountService) create(ctx context.Context, caller *core.Capability, role core.Role, action string, in NewAccount) (*CreatedAccount, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return nil, core.E(core.KindValidation, "a valid email is required")
	}

	password, err := tempPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Active:       true,
	}
	err = s.store.InTx(ctx, func(tx ports.Tx) error {
		if _, err := tx.UserByEmail(ctx, email); err == nil {
			return core.ErrEmailTaken
		} else if !errors.Is(err, core.ErrUserNotFound) {
			return err
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		metadata := map[string]string{
			"email":     email,
			"firstName": user.FirstName,
			"lastName":  user.LastName,
			"createdBy": caller.UserID,
		}
		if phone := strings.TrimSpace(in.Phone); phone != "" {
			metadata["contactPhone"] = phone
		}
		if website := strings.TrimSpace(in.Website); website != "" {
			metadata["website"] = website
		}
		return tx.AppendAudit(ctx, core.NewAuditEntry(caller.UserID, action, core.ResourceUser, user.ID, core.AuditSuccess, metadata))
	})
	if err != nil {
		s.audit.record(ctx, core.NewAuditEntry(caller.UserID, action, core.ResourceUser, "", core.AuditFailure,
			map[string]string{"email": email}).WithError(err))
		return nil, err
	}

	s.logger.Info("account created", zap.String("user", user.ID), zap.String("role", string(role)))
	return &CreatedAccount{User: user, TempPassword: password}, nil
}

// ListIssuers returns every issuer account with the addresses of its active
// wallets.
func (s *AccountService) ListIssuers(ctx context.Context, admin *core.Capability) ([]IssuerSummary, error) {
	if err := requireRole(admin, s.now(), core.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsersByRole(ctx, core.RoleIssuer)
	if err != nil {
		return nil, err
	}

	out := make([]IssuerSummary, 0, len(users))
	for _, u := range users {
		wallets, err := s.store.ListWalletsByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		addresses := make([]string, 0, len(wallets))
		for _, w := range wallets {
			if w.Active {
				addresses = append(addresses, w.Address)
			}
		}
		out = append(out, IssuerSummary{User: u, Wallets: addresses})
	}
	return out, nil
}

func tempPassword() (string, error) {
	b := make([]byte, tempPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
