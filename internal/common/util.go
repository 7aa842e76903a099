package common

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateRandByteArray returns size bytes from the platform CSPRNG.
// crypto/rand.Read never fails on supported platforms; a failure here means
// the process cannot continue safely, so it panics.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// HashToken returns the hex-encoded SHA-256 digest of a raw token string.
// Registries persist only this digest, never the raw value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DeviceFingerprint derives the advisory device hash from the client IP and
// user agent. It informs audit views and logging only; it must never gate a
// refresh, because both inputs are attacker-controllable.
func DeviceFingerprint(ipAddress, userAgent string) string {
	sum := sha256.Sum256([]byte(ipAddress + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// WipeByteArray overwrites the contents of the provided byte slice with
// zeros. Useful for removing key material from memory after use. A nil slice
// is a no-op.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
