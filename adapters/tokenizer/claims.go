package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the session identity
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SigningClaims scope a session identity to one mapped wallet
type SigningClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	Role          string `json:"role"`
	WalletAddress string `json:"wallet_address"`
	WalletID      string `json:"wid"`
	Purpose       string `json:"purpose"`
}
