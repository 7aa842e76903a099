// Package refreshtokens declares the repository contract for the refresh
// token registry: one row per issued refresh token, keyed by hash.
package refreshtokens

import (
	"context"
	"time"

	"github.com/example/sessionkeeper/internal/server/models"
)

// Repository defines operations over persisted refresh-token records.
// Records are always addressed by the SHA-256 hash of the raw token; raw
// values never reach this layer.
type Repository interface {
	// Create inserts a new record. The token hash is unique; inserting a
	// duplicate is an error.
	Create(ctx context.Context, record *models.RefreshToken) error

	// FindByHash returns the record for the given token hash, or
	// common.ErrorNotFound when it is absent.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// MarkUsed updates last_used_at. It is idempotent and silently does
	// nothing for revoked records, so a revocation is never overwritten by a
	// concurrent refresh.
	MarkUsed(ctx context.Context, tokenHash string, now time.Time) error

	// Revoke marks the record revoked. Revoking twice is not an error, and a
	// record never transitions back.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllForUser revokes every non-revoked record of a user
	// (administrative action).
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) error

	// ListActiveForUser returns the user's non-revoked, non-expired records
	// ordered by last_used_at descending.
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*models.RefreshToken, error)

	// DeleteExpired removes records whose expiry has passed and reports how
	// many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
