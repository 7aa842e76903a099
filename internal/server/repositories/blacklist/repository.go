// Package blacklist declares the repository contract for the access-token
// denylist. Because access tokens are self-contained, an explicit denylist is
// the only way to reject one before its signed expiry.
package blacklist

import (
	"context"
	"time"

	"github.com/example/sessionkeeper/internal/server/models"
)

// Repository defines storage operations for blacklist entries. Entries carry
// the blacklisted token's own expiry, which keeps the denylist bounded: past
// that point the signature check alone rejects the token and the row is swept.
type Repository interface {
	// Add inserts a blacklist entry for an access-token hash.
	Add(ctx context.Context, entry *models.BlacklistEntry) error

	// IsBlacklisted reports whether the token hash has an entry. Checked on
	// every access-token verification.
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)

	// DeleteExpired removes entries whose expiry has passed and reports how
	// many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
