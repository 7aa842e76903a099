// Package secrets declares the repository contract for persisted signing
// secrets. The Value field carries the sealed ciphertext at this layer;
// encryption and decryption are the secret store's concern.
package secrets

import (
	"context"
	"time"

	"github.com/example/sessionkeeper/internal/server/models"
)

// Repository defines storage operations for signing-secret rows.
type Repository interface {
	// Create inserts a new secret row. Inserting a second active secret
	// violates the single-active partial unique index.
	Create(ctx context.Context, secret *models.Secret) error

	// GetActive returns the active secret, or common.ErrorNotFound when no
	// secret has been created yet.
	GetActive(ctx context.Context) (*models.Secret, error)

	// GetByID returns a secret row by ID regardless of active state, or
	// common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.Secret, error)

	// DeactivateActive marks the active secret inactive and stamps its
	// retention expiry. Doing this and Create in one transaction is the
	// rotation swap.
	DeactivateActive(ctx context.Context, expiresAt time.Time) error

	// DeleteExpired removes inactive secrets past their retention expiry and
	// reports how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
