package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/dbx"
	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/models"
	"github.com/example/sessionkeeper/internal/server/repositories/blacklist"
	"github.com/example/sessionkeeper/internal/server/repositories/refreshtokens"
	"github.com/example/sessionkeeper/internal/server/repositories/secrets"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

// fakeSecretsRepo keeps sealed secret rows in memory. Rows are stored as
// given, so the real store's seal/unseal path is exercised end to end.
type fakeSecretsRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Secret

	createErr    error
	getActiveErr error
	getByIDErr   error
	deleteErr    error
}

func newFakeSecretsRepo() *fakeSecretsRepo {
	return &fakeSecretsRepo{rows: make(map[string]*models.Secret)}
}

func (r *fakeSecretsRepo) Create(_ context.Context, secret *models.Secret) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if secret.IsActive {
		for _, row := range r.rows {
			if row.IsActive {
				return errors.New("duplicate active secret")
			}
		}
	}
	row := *secret
	r.rows[row.ID] = &row
	return nil
}

func (r *fakeSecretsRepo) GetActive(context.Context) (*models.Secret, error) {
	if r.getActiveErr != nil {
		return nil, r.getActiveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.IsActive {
			copied := *row
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeSecretsRepo) GetByID(_ context.Context, id string) (*models.Secret, error) {
	if r.getByIDErr != nil {
		return nil, r.getByIDErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *fakeSecretsRepo) DeactivateActive(_ context.Context, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.IsActive {
			row.IsActive = false
			expiry := expiresAt
			row.ExpiresAt = &expiry
		}
	}
	return nil
}

func (r *fakeSecretsRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if !row.IsActive && row.IsExpired(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeRefreshRepo struct {
	mu   sync.Mutex
	rows map[string]*models.RefreshToken

	createFailures int // fail this many Create calls before succeeding
	createErr      error
	findErr        error
	markUsedErr    error
	revokeErr      error
	deleteErr      error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{rows: make(map[string]*models.RefreshToken)}
}

func (r *fakeRefreshRepo) Create(_ context.Context, record *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createFailures > 0 {
		r.createFailures--
		return errors.New("connection reset")
	}
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.rows[record.TokenHash]; ok {
		return errors.New("duplicate token hash")
	}
	copied := *record
	r.rows[record.TokenHash] = &copied
	return nil
}

func (r *fakeRefreshRepo) FindByHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *fakeRefreshRepo) MarkUsed(_ context.Context, tokenHash string, now time.Time) error {
	if r.markUsedErr != nil {
		return r.markUsedErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[tokenHash]; ok && !row.Revoked {
		row.LastUsedAt = now
	}
	return nil
}

func (r *fakeRefreshRepo) Revoke(_ context.Context, tokenHash string, now time.Time) error {
	if r.revokeErr != nil {
		return r.revokeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[tokenHash]; ok && !row.Revoked {
		row.Revoked = true
		at := now
		row.RevokedAt = &at
	}
	return nil
}

func (r *fakeRefreshRepo) RevokeAllForUser(_ context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && !row.Revoked {
			row.Revoked = true
			at := now
			row.RevokedAt = &at
		}
	}
	return nil
}

func (r *fakeRefreshRepo) ListActiveForUser(_ context.Context, userID string, now time.Time) ([]*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RefreshToken
	for _, row := range r.rows {
		if row.UserID == userID && !row.Revoked && !row.IsExpired(now) {
			copied := *row
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, row := range r.rows {
		if row.IsExpired(now) {
			delete(r.rows, hash)
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshRepo) get(tokenHash string) *models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[tokenHash]
}

type fakeBlacklistRepo struct {
	mu   sync.Mutex
	rows map[string]*models.BlacklistEntry

	addErr       error
	isBlacklErr  error
	deleteErr    error
}

func newFakeBlacklistRepo() *fakeBlacklistRepo {
	return &fakeBlacklistRepo{rows: make(map[string]*models.BlacklistEntry)}
}

func (r *fakeBlacklistRepo) Add(_ context.Context, entry *models.BlacklistEntry) error {
	if r.addErr != nil {
		return r.addErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.rows[entry.TokenHash] = &copied
	return nil
}

func (r *fakeBlacklistRepo) IsBlacklisted(_ context.Context, tokenHash string) (bool, error) {
	if r.isBlacklErr != nil {
		return false, r.isBlacklErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[tokenHash]
	return ok, nil
}

func (r *fakeBlacklistRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, row := range r.rows {
		if row.ExpiresAt.Before(now) {
			delete(r.rows, hash)
			n++
		}
	}
	return n, nil
}

// fakeRepoManager vends the in-memory fakes regardless of the DBTX handed in.
type fakeRepoManager struct {
	secrets       *fakeSecretsRepo
	refreshTokens *fakeRefreshRepo
	blacklist     *fakeBlacklistRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		secrets:       newFakeSecretsRepo(),
		refreshTokens: newFakeRefreshRepo(),
		blacklist:     newFakeBlacklistRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Secrets(dbx.DBTX) secrets.Repository             { return m.secrets }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refreshTokens }
func (m *fakeRepoManager) Blacklist(dbx.DBTX) blacklist.Repository         { return m.blacklist }
