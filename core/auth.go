package core

import "time"

// ChallengeTTL is how long a wallet challenge stays usable.
const ChallengeTTL = 5 * time.Minute

// ChallengeMessagePrefix is the fixed text the wallet holder signs; the nonce
// is appended to it.
const ChallengeMessagePrefix = "Sign this message to authorize certificate issuance: "

// Challenge is the single live challenge for a wallet address.
type Challenge struct {
	Address   string    // Normalised (lower-case) wallet address
	Nonce     string    // Random single-use nonce
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge lapses
}

// Message returns the exact text the wallet holder has to sign.
func (c *Challenge) Message() string {
	return ChallengeMessagePrefix + c.Nonce
}

// Expired reports whether the challenge has lapsed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ChallengeMessage is returned to the wallet holder.
type ChallengeMessage struct {
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}
