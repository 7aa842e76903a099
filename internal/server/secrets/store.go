// Package secrets implements the secret store: the single owner of signing
// keys. It lazily creates the first secret, rotates atomically, seals key
// material at rest, and serves verification lookups by secret ID with a
// short TTL-bounded cache so rotation is observed promptly by all instances.
package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/cryptox"
	"github.com/example/sessionkeeper/internal/dbx"
	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/models"
	"github.com/example/sessionkeeper/internal/server/repositories/repomanager"
)

// rotateAttempts bounds retries of the rotation transaction when two
// instances race on the single-active unique index.
const rotateAttempts = 3

// Store owns the secrets table. All reads return secrets with decrypted
// key material; ciphertext never leaves this package.
type Store struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	masterKey []byte
	retention time.Duration
	cacheTTL  time.Duration
	logger    logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	active   *models.Secret
	byID     map[string]cacheEntry
	cachedAt time.Time
}

// cacheEntry carries its own fetch time so kid lookups filled by GetByID
// stay warm for the full TTL even when GetActive has not run recently.
type cacheEntry struct {
	secret    *models.Secret
	fetchedAt time.Time
}

// NewStore constructs a Store. The master key is mandatory: there is no
// default and no fallback. retention is how long a deactivated secret stays
// verifiable (the refresh-token TTL, since that is the longest-lived token
// signed under it).
func NewStore(db *sql.DB, repos repomanager.RepositoryManager, masterKey []byte, retention, cacheTTL time.Duration, logger logging.Logger) (*Store, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("master key is required")
	}
	return &Store{
		db:        db,
		repos:     repos,
		masterKey: masterKey,
		retention: retention,
		cacheTTL:  cacheTTL,
		logger:    logger.With("module", "secret_store"),
		now:       time.Now,
		byID:      make(map[string]cacheEntry),
	}, nil
}

// GetActive returns the active signing secret, generating and persisting one
// if none exists yet.
func (s *Store) GetActive(ctx context.Context) (*models.Secret, error) {
	now := s.now()

	s.mu.Lock()
	if s.active != nil && now.Sub(s.cachedAt) < s.cacheTTL {
		secret := s.active
		s.mu.Unlock()
		return secret, nil
	}
	s.mu.Unlock()

	secret, err := s.loadActive(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		createErr := s.createInitial(ctx)
		secret, err = s.loadActive(ctx)
		if errors.Is(err, common.ErrorNotFound) {
			// no row appeared: the insert failed outright rather than losing
			// a creation race, so this is a storage failure, not absence
			if createErr == nil {
				createErr = err
			}
			return nil, fmt.Errorf("creating initial secret: %w: %w", common.ErrStoreUnavailable, createErr)
		}
	}
	if err != nil {
		return nil, err
	}

	s.cache(secret, now)
	return secret, nil
}

// GetByID resolves a retained secret by its ID for verification. Secrets past
// their retention expiry are reported as not found, so tokens signed under
// them stop verifying even before the sweeper deletes the row.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Secret, error) {
	now := s.now()

	s.mu.Lock()
	if entry, ok := s.byID[id]; ok && now.Sub(entry.fetchedAt) < s.cacheTTL {
		s.mu.Unlock()
		if entry.secret.IsExpired(now) {
			return nil, common.ErrorNotFound
		}
		return entry.secret, nil
	}
	s.mu.Unlock()

	repo := s.repos.Secrets(s.db)
	row, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("reading secret: %w: %w", common.ErrStoreUnavailable, err)
	}

	secret, err := s.unseal(row)
	if err != nil {
		return nil, err
	}
	if secret.IsExpired(now) {
		return nil, common.ErrorNotFound
	}

	s.mu.Lock()
	s.byID[secret.ID] = cacheEntry{secret: secret, fetchedAt: now}
	s.mu.Unlock()
	return secret, nil
}

// Rotate generates new key material, activates it, and deactivates the
// previous active secret in the same transaction. Two instances racing on
// rotation are serialized by the single-active unique index; the loser
// retries a bounded number of times.
func (s *Store) Rotate(ctx context.Context) (*models.Secret, error) {
	var rotated *models.Secret

	backoff := retry.WithMaxRetries(rotateAttempts, retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		secret, err := s.rotateOnce(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		rotated = secret
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rotating secret: %w: %w", common.ErrStoreUnavailable, err)
	}

	s.invalidate()
	s.logger.Info(ctx, "signing secret rotated", "secret_id", rotated.ID)
	return rotated, nil
}

func (s *Store) rotateOnce(ctx context.Context) (*models.Secret, error) {
	now := s.now()
	secret := s.newSecret(now)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Secrets(tx)
		if err := repo.DeactivateActive(ctx, now.Add(s.retention)); err != nil {
			return err
		}
		return repo.Create(ctx, s.sealed(secret))
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// createInitial persists the very first secret. A concurrent instance may win
// the race; the unique index rejects the second insert and the caller simply
// re-reads the active row. The error is returned so that a failed insert with
// no active row to re-read keeps its storage identity.
func (s *Store) createInitial(ctx context.Context) error {
	secret := s.newSecret(s.now())

	repo := s.repos.Secrets(s.db)
	if err := repo.Create(ctx, s.sealed(secret)); err != nil {
		s.logger.Warn(ctx, "initial secret insert failed, re-reading", "error", err.Error())
		return err
	}
	return nil
}

func (s *Store) loadActive(ctx context.Context) (*models.Secret, error) {
	repo := s.repos.Secrets(s.db)
	row, err := repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("reading active secret: %w: %w", common.ErrStoreUnavailable, err)
	}
	return s.unseal(row)
}

func (s *Store) newSecret(now time.Time) *models.Secret {
	return &models.Secret{
		ID:        uuid.NewString(),
		Value:     common.GenerateRandByteArray(common.SecretKeySize),
		IsActive:  true,
		CreatedAt: now,
	}
}

// sealed returns a storage copy with the key material encrypted.
func (s *Store) sealed(secret *models.Secret) *models.Secret {
	blob, err := cryptox.Seal(secret.Value, s.masterKey)
	if err != nil {
		// Seal only fails if the CSPRNG does, which GenerateRandByteArray
		// already treats as fatal.
		panic(err)
	}
	row := *secret
	row.Value = blob
	return &row
}

// unseal decrypts a storage row in place. A decryption failure means the row
// was written under a different master key or tampered with; callers must
// treat tokens signed since as unverifiable and force a rotation.
func (s *Store) unseal(row *models.Secret) (*models.Secret, error) {
	plain, err := cryptox.Open(row.Value, s.masterKey)
	if err != nil {
		s.logger.Error(context.Background(), "secret decryption failed, forcing rotation is required",
			"secret_id", row.ID)
		return nil, fmt.Errorf("unsealing secret %s: %w", row.ID, common.ErrSecretCorrupted)
	}
	secret := *row
	secret.Value = plain
	return &secret, nil
}

func (s *Store) cache(secret *models.Secret, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = secret
	s.byID[secret.ID] = cacheEntry{secret: secret, fetchedAt: at}
	s.cachedAt = at
}

func (s *Store) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.byID = make(map[string]cacheEntry)
	s.cachedAt = time.Time{}
}
