package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/dbx"
	"github.com/example/sessionkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, secret *models.Secret) error {
	query := `
		INSERT INTO secrets (id, value_encrypted, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		secret.ID, secret.Value, secret.IsActive, secret.CreatedAt, secret.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting secret: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetActive(ctx context.Context) (*models.Secret, error) {
	query := `
		SELECT id, value_encrypted, is_active, created_at, expires_at
		FROM secrets
		WHERE is_active = TRUE
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Secret, error) {
	query := `
		SELECT id, value_encrypted, is_active, created_at, expires_at
		FROM secrets
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Secret, error) {
	secret := &models.Secret{}
	var expiresAt sql.NullTime
	err := row.Scan(&secret.ID, &secret.Value, &secret.IsActive, &secret.CreatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if expiresAt.Valid {
		secret.ExpiresAt = &expiresAt.Time
	}
	return secret, nil
}

func (r *PostgresRepository) DeactivateActive(ctx context.Context, expiresAt time.Time) error {
	query := `
		UPDATE secrets
		SET is_active = FALSE, expires_at = $1
		WHERE is_active = TRUE
	`
	if _, err := r.db.ExecContext(ctx, query, expiresAt); err != nil {
		return fmt.Errorf("deactivating secret: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM secrets
		WHERE is_active = FALSE AND expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired secrets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted secrets: %w", err)
	}
	return n, nil
}
