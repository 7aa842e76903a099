package models

import "time"

// RefreshToken is the persisted record of an issued refresh token. Only the
// SHA-256 hash of the raw token is stored; the raw value exists solely in the
// TokenPair returned to the caller. The device fields are advisory metadata
// for audit and the "manage my devices" view, never a trust boundary.
type RefreshToken struct {
	ID                string
	UserID            string
	TokenHash         string
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	CreatedAt         time.Time
	LastUsedAt        time.Time
	ExpiresAt         time.Time
	Revoked           bool
	RevokedAt         *time.Time
}

// IsExpired reports whether the record is past its expiry. Expired records
// remain in storage until swept but must never satisfy a refresh.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
