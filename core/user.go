package core

import "time"

// Role is the account role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleIssuer   Role = "ISSUER"
	RoleOwner    Role = "OWNER"
	RoleVerifier Role = "VERIFIER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleIssuer, RoleOwner, RoleVerifier:
		return true
	}
	return false
}

// User is an account. Issuers keep the institution name in FirstName.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	FirstName    string
	LastName     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName is the name printed on documents.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return "Issuer"
	}
}

// Wallet binds a ledger address to exactly one user, forever.
type Wallet struct {
	ID        string
	Address   string
	UserID    string
	Active    bool
	MappedTx  string
	RevokedTx string
	CreatedAt time.Time
	RevokedAt *time.Time
}
