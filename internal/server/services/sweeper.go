package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/config"
	"github.com/example/sessionkeeper/internal/server/repositories/repomanager"
)

// RetentionSweeper periodically deletes rows that no longer affect any
// decision: expired refresh-token records, blacklist entries past the expiry
// of the token they blocked, and deactivated signing secrets past their
// retention window. Sweeping is hygiene, not correctness; every read path
// already ignores expired rows, so a failed sweep is logged and retried on
// the next tick, never fatal.
type RetentionSweeper struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
}

// NewRetentionSweeper constructs a sweeper from server config.
func NewRetentionSweeper(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		db:       db,
		repos:    repos,
		interval: cfg.SweepInterval,
		logger:   logger.With("module", "retention_sweeper"),
		now:      time.Now,
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled. Intended to be started as a goroutine from the app.
func (s *RetentionSweeper) Run(ctx context.Context) {
	s.Sweep(ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, s.now())
		}
	}
}

// Sweep deletes expired rows from all three registries. Each registry is
// swept independently so one failing table does not starve the others.
func (s *RetentionSweeper) Sweep(ctx context.Context, now time.Time) {
	if n, err := s.repos.RefreshTokens(s.db).DeleteExpired(ctx, now); err != nil {
		s.logger.Error(ctx, "sweeping refresh tokens failed", "error", err.Error())
	} else if n > 0 {
		s.logger.Info(ctx, "swept expired refresh tokens", "deleted", n)
	}

	if n, err := s.repos.Blacklist(s.db).DeleteExpired(ctx, now); err != nil {
		s.logger.Error(ctx, "sweeping blacklist failed", "error", err.Error())
	} else if n > 0 {
		s.logger.Info(ctx, "swept expired blacklist entries", "deleted", n)
	}

	if n, err := s.repos.Secrets(s.db).DeleteExpired(ctx, now); err != nil {
		s.logger.Error(ctx, "sweeping retired secrets failed", "error", err.Error())
	} else if n > 0 {
		s.logger.Info(ctx, "swept retired signing secrets", "deleted", n)
	}
}
