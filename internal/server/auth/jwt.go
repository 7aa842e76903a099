// Package auth implements the token codec: signing and parsing of typed JWT
// claims. Tokens carry the signing secret's ID in the "kid" header, so
// verification keeps working across secret rotation for as long as the old
// secret is retained.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/server/models"
)

// TokenType distinguishes access from refresh tokens. A token of one type
// must never be accepted where the other is expected.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the set of claims encoded in every signed token.
type Claims struct {
	jwt.RegisteredClaims
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"type"`
}

// KeyResolver resolves a retained signing secret by its kid. It should return
// common.ErrorNotFound for unknown kids and common.ErrStoreUnavailable /
// common.ErrSecretCorrupted for store failures, which Parse passes through.
type KeyResolver func(ctx context.Context, kid string) (*models.Secret, error)

// Codec signs and parses tokens for a fixed issuer/audience deployment.
type Codec struct {
	issuer   string
	audience string
}

func NewCodec(issuer, audience string) *Codec {
	return &Codec{issuer: issuer, audience: audience}
}

// NewClaims builds the claims for a token issued at now with the given
// lifetime. Expiry is absolute, so issuance and verification do not need to
// agree on durations.
func (c *Codec) NewClaims(userID, email, role string, typ TokenType, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     email,
		Role:      role,
		TokenType: typ,
	}
}

// Sign produces a compact HS256 token with the secret's ID in the kid header.
func (c *Codec) Sign(claims *Claims, secret *models.Secret) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = secret.ID

	signed, err := token.SignedString(secret.Value)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and expiry, then checks that the
// token's type matches expected. The returned errors are distinct sentinels
// so that callers can tell "expired but otherwise valid" apart from
// "tampered/forged"; only the former should trigger a client refresh attempt.
func (c *Codec) Parse(ctx context.Context, tokenString string, resolve KeyResolver, expected TokenType) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, common.ErrorNotFound
		}
		secret, err := resolve(ctx, kid)
		if err != nil {
			return nil, err
		}
		return secret.Value, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	if claims.TokenType != expected {
		return nil, common.ErrTokenTypeMismatch
	}
	return claims, nil
}

// mapJWTError translates golang-jwt errors into the codec's sentinel
// taxonomy. Store failures raised by the key resolver keep their identity so
// that they are never mistaken for an invalid token.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, common.ErrStoreUnavailable):
		return common.ErrStoreUnavailable
	case errors.Is(err, common.ErrSecretCorrupted):
		return common.ErrSecretCorrupted
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return common.ErrWrongAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return common.ErrWrongIssuer
	default:
		// signature failures, malformed tokens, unknown kids
		return common.ErrInvalidSignature
	}
}
