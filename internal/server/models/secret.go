// Package models holds the persistent and value types of the session
// subsystem.
package models

import "time"

// Secret is a signing key stored in the database with support for rotation.
// Value holds the decrypted key material in memory; at rest it is sealed by
// the secret store. At most one secret is active at any time (enforced by a
// partial unique index). Deactivated secrets are retained until ExpiresAt so
// that tokens signed under them keep verifying, then swept.
type Secret struct {
	ID        string
	Value     []byte
	IsActive  bool
	CreatedAt time.Time
	ExpiresAt *time.Time // nil while active
}

// IsExpired reports whether the secret is past its retention window.
// Active secrets never expire.
func (s *Secret) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
