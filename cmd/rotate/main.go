// Command rotate swaps in a new signing secret. It is meant to be run by an
// operator or a scheduled job; the previous secret stays verifiable for the
// refresh-token lifetime, so rotation is invisible to signed-in users.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/config"
	"github.com/example/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/example/sessionkeeper/internal/server/secrets"
)

// readPassword is a seam for tests.
var readPassword = term.ReadPassword

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rotation failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg := config.LoadConfig()
	if cfg.MasterKey == "" {
		fmt.Fprint(os.Stderr, "master key: ")
		key, err := readPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading master key: %w", err)
		}
		cfg.MasterKey = string(key)
		common.WipeByteArray(key)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	store, err := secrets.NewStore(db, repos, []byte(cfg.MasterKey),
		cfg.RefreshTokenValidityDuration, cfg.SecretCacheTTL, logger)
	if err != nil {
		return err
	}

	rotated, err := store.Rotate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("rotated, new secret id: %s\n", rotated.ID)
	return nil
}
