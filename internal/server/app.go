// Package server wires the session subsystem together: configuration,
// database, migrations, the secret store, the session service and the
// retention sweeper, plus graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/config"
	"github.com/example/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/example/sessionkeeper/internal/server/secrets"
	"github.com/example/sessionkeeper/internal/server/services"
)

// App holds the assembled session subsystem. Sessions exposes the token
// lifecycle operations to whatever transport embeds this app.
type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	Sessions *services.SessionService
	sweeper  *services.RetentionSweeper
}

// NewApp loads configuration, opens the database, runs migrations and wires
// the services. The caller owns the returned App and must call Run.
func NewApp(ctx context.Context) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	store, err := secrets.NewStore(db, repos, []byte(cfg.MasterKey),
		cfg.RefreshTokenValidityDuration, cfg.SecretCacheTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing secret store: %w", err)
	}

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		Sessions: services.NewSessionService(db, repos, store, cfg, logger),
		sweeper:  services.NewRetentionSweeper(db, repos, cfg, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the background sweeper and blocks until the context is cancelled
// or an OS signal arrives, then closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting session subsystem")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err.Error())
	}
	app.logger.Info(ctx, "session subsystem stopped")
}
