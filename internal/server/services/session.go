// Package services contains the session subsystem's business logic.
// SessionService orchestrates the secret store, the token codec and the
// registries to implement issue/verify/refresh/revoke/list.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/auth"
	"github.com/example/sessionkeeper/internal/server/config"
	"github.com/example/sessionkeeper/internal/server/models"
	"github.com/example/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/example/sessionkeeper/internal/server/secrets"
)

// storeAttempts bounds retries of the refresh-record write during IssuePair.
// A signed-but-unregistered refresh token is a liability, so the write is
// worth a few attempts before the whole issuance fails.
const storeAttempts = 3

// SessionService implements the token lifecycle operations exposed to the
// rest of the application. It is stateless between calls; all durable state
// lives in the store.
type SessionService struct {
	db         *sql.DB
	repos      repomanager.RepositoryManager
	secrets    *secrets.Store
	codec      *auth.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     logging.Logger
	now        func() time.Time
}

// NewSessionService constructs a SessionService from server config.
func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, store *secrets.Store, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:         db,
		repos:      repos,
		secrets:    store,
		codec:      auth.NewCodec(cfg.Issuer, cfg.Audience),
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		logger:     logger.With("module", "session_service"),
		now:        time.Now,
	}
}

// IssuePair signs a new access/refresh token pair with the active secret and
// persists the refresh token's registry record. The registry write is retried
// a bounded number of times; if it still fails the whole issuance fails,
// because a refresh token without a registry entry must never circulate.
func (s *SessionService) IssuePair(ctx context.Context, userID, email, role string, device models.DeviceInfo) (*models.TokenPair, error) {
	secret, err := s.secrets.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()

	accessClaims := s.codec.NewClaims(userID, email, role, auth.TokenTypeAccess, now, s.accessTTL)
	accessToken, err := s.codec.Sign(accessClaims, secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refreshClaims := s.codec.NewClaims(userID, email, role, auth.TokenTypeRefresh, now, s.refreshTTL)
	refreshToken, err := s.codec.Sign(refreshClaims, secret)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}

	record := &models.RefreshToken{
		ID:                uuid.NewString(),
		UserID:            userID,
		TokenHash:         common.HashToken(refreshToken),
		DeviceFingerprint: common.DeviceFingerprint(device.IPAddress, device.UserAgent),
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		CreatedAt:         now,
		LastUsedAt:        now,
		ExpiresAt:         now.Add(s.refreshTTL),
	}

	repo := s.repos.RefreshTokens(s.db)
	backoff := retry.WithMaxRetries(storeAttempts, retry.NewConstant(50*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := repo.Create(ctx, record); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "refresh record write failed, aborting issuance",
			"user_id", userID, "error", err.Error())
		return nil, fmt.Errorf("storing refresh token: %w: %w", common.ErrStoreUnavailable, err)
	}

	return &models.TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  now.Add(s.accessTTL),
		RefreshTokenExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

// VerifyAccess validates an access token: signature, issuer, audience,
// expiry, token type, and the blacklist. All authentication failures come
// back as the single ErrUnauthenticated; the specific reason is only logged,
// so callers cannot be used as an oracle for why a token failed. Store
// failures keep their own identity and must surface as 5xx, never 401.
func (s *SessionService) VerifyAccess(ctx context.Context, rawAccessToken string) (*auth.Claims, error) {
	claims, err := s.codec.Parse(ctx, rawAccessToken, s.secrets.GetByID, auth.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, common.ErrSecretCorrupted) {
			return nil, err
		}
		s.logger.Info(ctx, "access token rejected", "reason", err.Error())
		return nil, common.ErrUnauthenticated
	}

	blacklisted, err := s.repos.Blacklist(s.db).IsBlacklisted(ctx, common.HashToken(rawAccessToken))
	if err != nil {
		// a store timeout must never read as "token invalid"
		return nil, fmt.Errorf("checking blacklist: %w: %w", common.ErrStoreUnavailable, err)
	}
	if blacklisted {
		s.logger.Info(ctx, "access token rejected", "reason", "blacklisted", "user_id", claims.Subject)
		return nil, common.ErrUnauthenticated
	}

	return claims, nil
}

// Refresh validates a refresh token against both its signature and its
// registry record, then mints a new access token. The refresh token itself is
// not rotated. A structurally valid token with no registry record is treated
// as revoked, not trusted.
func (s *SessionService) Refresh(ctx context.Context, rawRefreshToken string, device models.DeviceInfo) (string, time.Time, error) {
	claims, err := s.codec.Parse(ctx, rawRefreshToken, s.secrets.GetByID, auth.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, common.ErrSecretCorrupted) {
			return "", time.Time{}, err
		}
		s.logger.Info(ctx, "refresh token rejected", "reason", err.Error())
		return "", time.Time{}, common.ErrUnauthenticated
	}

	now := s.now()
	hash := common.HashToken(rawRefreshToken)
	repo := s.repos.RefreshTokens(s.db)

	record, err := repo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "refresh token has valid signature but no registry record",
				"user_id", claims.Subject)
			return "", time.Time{}, common.ErrUnauthenticated
		}
		return "", time.Time{}, fmt.Errorf("looking up refresh token: %w: %w", common.ErrStoreUnavailable, err)
	}

	switch {
	case record.Revoked:
		s.logger.Info(ctx, "refresh token rejected", "reason", common.ErrTokenRevoked.Error(),
			"user_id", record.UserID)
		return "", time.Time{}, common.ErrUnauthenticated
	case record.IsExpired(now):
		s.logger.Info(ctx, "refresh token rejected", "reason", common.ErrRefreshTokenExpired.Error(),
			"user_id", record.UserID)
		return "", time.Time{}, common.ErrUnauthenticated
	}

	// fingerprint mismatch is advisory only: log it, never gate on it
	if fp := common.DeviceFingerprint(device.IPAddress, device.UserAgent); fp != record.DeviceFingerprint {
		s.logger.Warn(ctx, "refresh from a different device fingerprint",
			"user_id", record.UserID, "ip", device.IPAddress)
	}

	if err := repo.MarkUsed(ctx, hash, now); err != nil {
		return "", time.Time{}, fmt.Errorf("updating last_used_at: %w: %w", common.ErrStoreUnavailable, err)
	}

	secret, err := s.secrets.GetActive(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	accessClaims := s.codec.NewClaims(record.UserID, claims.Email, claims.Role, auth.TokenTypeAccess, now, s.accessTTL)
	accessToken, err := s.codec.Sign(accessClaims, secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return accessToken, now.Add(s.accessTTL), nil
}

// Revoke ends a session: the access token is blacklisted until its natural
// expiry and the refresh-token record is revoked. When only one side can be
// revoked, the call reports ErrPartialRevocation instead of swallowing the
// failure; an access token left valid is bounded by its own TTL.
func (s *SessionService) Revoke(ctx context.Context, rawAccessToken, rawRefreshToken string, reason models.RevocationReason) error {
	now := s.now()

	accessErr := s.blacklistAccessToken(ctx, rawAccessToken, reason, now)

	var refreshErr error
	if rawRefreshToken == "" {
		refreshErr = errors.New("refresh token not provided")
	} else {
		refreshErr = s.repos.RefreshTokens(s.db).Revoke(ctx, common.HashToken(rawRefreshToken), now)
	}

	switch {
	case accessErr == nil && refreshErr == nil:
		return nil
	case accessErr != nil && refreshErr != nil:
		s.logger.Error(ctx, "revocation failed on both sides",
			"access_error", accessErr.Error(), "refresh_error", refreshErr.Error())
		return fmt.Errorf("revoking session: %w: %w", common.ErrStoreUnavailable, errors.Join(accessErr, refreshErr))
	case refreshErr != nil:
		s.logger.Warn(ctx, "access token blacklisted but refresh revocation failed",
			"error", refreshErr.Error())
		return fmt.Errorf("%w: %w", common.ErrPartialRevocation, refreshErr)
	default:
		s.logger.Warn(ctx, "refresh token revoked but access blacklisting failed",
			"error", accessErr.Error())
		return fmt.Errorf("%w: %w", common.ErrPartialRevocation, accessErr)
	}
}

// blacklistAccessToken parses the access token to recover its expiry and
// writes the blacklist entry. An already-expired token needs no entry: the
// signature check alone rejects it from now on.
func (s *SessionService) blacklistAccessToken(ctx context.Context, rawAccessToken string, reason models.RevocationReason, now time.Time) error {
	claims, err := s.codec.Parse(ctx, rawAccessToken, s.secrets.GetByID, auth.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil
		}
		return fmt.Errorf("parsing access token for revocation: %w", err)
	}

	entry := &models.BlacklistEntry{
		ID:        uuid.NewString(),
		TokenHash: common.HashToken(rawAccessToken),
		UserID:    claims.Subject,
		Reason:    reason,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: now,
	}
	if err := s.repos.Blacklist(s.db).Add(ctx, entry); err != nil {
		return fmt.Errorf("adding blacklist entry: %w", err)
	}
	return nil
}

// ListSessions returns the user's active sessions for a "manage my devices"
// view, most recently used first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]*models.SessionSummary, error) {
	records, err := s.repos.RefreshTokens(s.db).ListActiveForUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w: %w", common.ErrStoreUnavailable, err)
	}

	summaries := make([]*models.SessionSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, &models.SessionSummary{
			ID:                r.ID,
			DeviceFingerprint: r.DeviceFingerprint,
			IPAddress:         r.IPAddress,
			UserAgent:         r.UserAgent,
			CreatedAt:         r.CreatedAt,
			LastUsedAt:        r.LastUsedAt,
			ExpiresAt:         r.ExpiresAt,
		})
	}
	return summaries, nil
}

// RevokeAllForUser revokes every active refresh token of a user
// (administrative action).
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.repos.RefreshTokens(s.db).RevokeAllForUser(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("revoking user sessions: %w: %w", common.ErrStoreUnavailable, err)
	}
	return nil
}
