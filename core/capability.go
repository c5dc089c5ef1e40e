package core

import (
	"strings"
	"time"
)

// CapabilityKind tags the capability variant carried by a token.
type CapabilityKind string

const (
	// CapabilitySession is the ordinary logged-in session.
	CapabilitySession CapabilityKind = "session"

	// CapabilitySigning proves recent control of a mapped issuer wallet.
	CapabilitySigning CapabilityKind = "signing"
)

const (
	DefaultSessionTTL = time.Hour
	DefaultSigningTTL = 5 * time.Minute

	// PurposeSigning is the only purpose a signing capability can carry.
	PurposeSigning = "signing"
)

// Capability is the decoded content of a session or signing token.
type Capability struct {
	ID            string
	Kind          CapabilityKind
	UserID        string
	Email         string
	Role          Role
	WalletAddress string // Signing only
	WalletID      string // Signing only
	Purpose       string // Signing only
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Validate applies the kind-specific rules. The token layer already checks
// signature and audience; this covers what the claims themselves must say.
func (c *Capability) Validate(kind CapabilityKind, now time.Time) error {
	if c == nil || c.Kind != kind {
		return ErrInvalidToken
	}
	if c.UserID == "" {
		return ErrInvalidToken
	}
	// Every capability is bounded in time.
	if c.ExpiresAt.IsZero() {
		return ErrInvalidToken
	}
	if now.After(c.ExpiresAt) {
		return ErrTokenExpired
	}

	switch kind {
	case CapabilitySession:
		if !c.Role.Valid() {
			return ErrInvalidToken
		}
	case CapabilitySigning:
		if c.Purpose != PurposeSigning || c.WalletAddress == "" || c.WalletID == "" {
			return ErrInvalidToken
		}
		if c.Role != RoleIssuer {
			return Wrap(KindNotAuthorized, "only issuers can use signing tokens", nil)
		}
	default:
		return ErrInvalidToken
	}
	return nil
}

// HasRole reports whether the capability carries one of roles.
func (c *Capability) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// SameWallet compares wallet addresses case-insensitively.
func SameWallet(a, b string) bool {
	return strings.EqualFold(a, b)
}
