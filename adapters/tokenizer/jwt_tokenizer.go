package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
)

const AudienceSession = "certify:session"
const AudienceSigning = "certify:signing"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// CapabilityToToken signs a session or signing capability
func (j *JWTTokenizer) CapabilityToToken(c *core.Capability) (string, error) {
	if c.ExpiresAt.IsZero() {
		return "", errors.New("capability has no expiry")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	registered := jwt.RegisteredClaims{
		Subject:   c.UserID,
		ID:        c.ID,
		ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
	}

	var claims jwt.Claims
	switch c.Kind {
	case core.CapabilitySession:
		registered.Audience = jwt.ClaimStrings{AudienceSession}
		claims = SessionClaims{
			RegisteredClaims: registered,
			Email:            c.Email,
			Role:             string(c.Role),
		}
	case core.CapabilitySigning:
		registered.Audience = jwt.ClaimStrings{AudienceSigning}
		claims = SigningClaims{
			RegisteredClaims: registered,
			Email:            c.Email,
			Role:             string(c.Role),
			WalletAddress:    c.WalletAddress,
			WalletID:         c.WalletID,
			Purpose:          c.Purpose,
		}
	default:
		return "", fmt.Errorf("unknown capability kind %q", c.Kind)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// TokenToCapability parses a token of the expected kind
func (j *JWTTokenizer) TokenToCapability(tokenStr string, kind core.CapabilityKind) (*core.Capability, error) {
	switch kind {
	case core.CapabilitySession:
		claims := &SessionClaims{}
		if err := j.parse(tokenStr, claims, AudienceSession); err != nil {
			return nil, err
		}
		return &core.Capability{
			ID:        claims.ID,
			Kind:      core.CapabilitySession,
			UserID:    claims.Subject,
			Email:     claims.Email,
			Role:      core.Role(claims.Role),
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		}, nil

	case core.CapabilitySigning:
		claims := &SigningClaims{}
		if err := j.parse(tokenStr, claims, AudienceSigning); err != nil {
			return nil, err
		}
		return &core.Capability{
			ID:            claims.ID,
			Kind:          core.CapabilitySigning,
			UserID:        claims.Subject,
			Email:         claims.Email,
			Role:          core.Role(claims.Role),
			WalletAddress: claims.WalletAddress,
			WalletID:      claims.WalletID,
			Purpose:       claims.Purpose,
			IssuedAt:      claims.IssuedAt.Time,
			ExpiresAt:     claims.ExpiresAt.Time,
		}, nil
	}
	return nil, core.ErrInvalidToken
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired(), jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return core.Wrap(core.KindNotAuthorized, core.ErrInvalidToken.Msg, err)
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}
	return nil
}
