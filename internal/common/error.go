// Package common defines shared constants and sentinel errors used across
// the sessionkeeper packages. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Caller-facing taxonomy. Only the session service returns these;
	// the more specific errors below exist for logging and tests.
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrStoreUnavailable  = errors.New("secret store unavailable")
	ErrSecretCorrupted   = errors.New("secret corrupted")
	ErrPartialRevocation = errors.New("partial revocation")

	// Codec-level errors (invalid or malformed token).
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrTokenExpired      = errors.New("token expired")
	ErrWrongAudience     = errors.New("wrong token audience")
	ErrWrongIssuer       = errors.New("wrong token issuer")
	ErrTokenTypeMismatch = errors.New("token type mismatch")

	// Registry-level token lifecycle errors.
	ErrTokenRevoked        = errors.New("token revoked")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
