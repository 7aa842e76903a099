package models

import "time"

// RevocationReason explains why a token was revoked or blacklisted.
type RevocationReason string

const (
	ReasonLogout           RevocationReason = "logout"
	ReasonRevokedByAdmin   RevocationReason = "revoked_by_admin"
	ReasonSecurityIncident RevocationReason = "security_incident"
)

// BlacklistEntry denylists a still-valid access token by hash. ExpiresAt is
// copied from the token's own expiry: past that point the signature check
// alone rejects the token, so the entry is inert and eligible for sweeping.
type BlacklistEntry struct {
	ID        string
	TokenHash string
	UserID    string // optional, "" when unknown
	Reason    RevocationReason
	ExpiresAt time.Time
	CreatedAt time.Time
}
