package blacklist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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

func (r *PostgresRepository) Add(ctx context.Context, entry *models.BlacklistEntry) error {
	query := `
		INSERT INTO jwt_blacklist (id, token_hash, user_id, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var userID sql.NullString
	if entry.UserID != "" {
		userID = sql.NullString{String: entry.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.TokenHash, userID, string(entry.Reason), entry.ExpiresAt, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting blacklist entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM jwt_blacklist WHERE token_hash = $1)
	`
	var blacklisted bool
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&blacklisted); err != nil {
		return false, fmt.Errorf("checking blacklist: %w", err)
	}
	return blacklisted, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM jwt_blacklist
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired blacklist entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted blacklist entries: %w", err)
	}
	return n, nil
}
