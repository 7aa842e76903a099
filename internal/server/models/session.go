package models

import "time"

// TokenPair bundles a freshly issued access/refresh token pair with the
// absolute expiries of both. It is returned to the caller and never persisted.
type TokenPair struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// DeviceInfo carries the request metadata captured at issuance and refresh
// time.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
}

// SessionSummary is the projection of an active refresh-token record consumed
// by a "manage my devices" view.
type SessionSummary struct {
	ID                string
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	CreatedAt         time.Time
	LastUsedAt        time.Time
	ExpiresAt         time.Time
}
