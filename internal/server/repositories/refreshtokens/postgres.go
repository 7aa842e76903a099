package refreshtokens

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

func (r *PostgresRepository) Create(ctx context.Context, record *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens
			(id, user_id, token_hash, device_fingerprint, ip_address, user_agent,
			 created_at, last_used_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.TokenHash, record.DeviceFingerprint,
		record.IPAddress, record.UserAgent, record.CreatedAt, record.LastUsedAt,
		record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, device_fingerprint, ip_address, user_agent,
		       created_at, last_used_at, expires_at, revoked, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	record := &models.RefreshToken{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&record.ID, &record.UserID, &record.TokenHash, &record.DeviceFingerprint,
		&record.IPAddress, &record.UserAgent, &record.CreatedAt, &record.LastUsedAt,
		&record.ExpiresAt, &record.Revoked, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		record.RevokedAt = &revokedAt.Time
	}
	return record, nil
}

// MarkUsed is a conditional update guarded by revoked = FALSE so that a
// concurrent Revoke always wins. Last-writer-wins between concurrent
// MarkUsed calls is acceptable.
func (r *PostgresRepository) MarkUsed(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET last_used_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, tokenHash, now); err != nil {
		return fmt.Errorf("updating last_used_at: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, tokenHash, now); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, userID, now); err != nil {
		return fmt.Errorf("revoking user refresh tokens: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, device_fingerprint, ip_address, user_agent,
		       created_at, last_used_at, expires_at, revoked, revoked_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY last_used_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	var records []*models.RefreshToken
	for rows.Next() {
		record := &models.RefreshToken{}
		var revokedAt sql.NullTime
		if err := rows.Scan(
			&record.ID, &record.UserID, &record.TokenHash, &record.DeviceFingerprint,
			&record.IPAddress, &record.UserAgent, &record.CreatedAt, &record.LastUsedAt,
			&record.ExpiresAt, &record.Revoked, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		if revokedAt.Valid {
			record.RevokedAt = &revokedAt.Time
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh tokens: %w", err)
	}
	return records, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted refresh tokens: %w", err)
	}
	return n, nil
}
