package secrets

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	secret := &models.Secret{ID: "s1", Value: []byte("sealed"), IsActive: true, CreatedAt: now}

	mock.ExpectExec(`INSERT\s+INTO\s+secrets`).
		WithArgs("s1", []byte("sealed"), true, now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), secret); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetActive_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "value_encrypted", "is_active", "created_at", "expires_at"}).
		AddRow("s1", []byte("sealed"), true, now, nil)

	mock.ExpectQuery(`SELECT\s+.*FROM\s+secrets\s+WHERE\s+is_active\s*=\s*TRUE`).
		WillReturnRows(rows)

	got, err := repo.GetActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "s1" || !got.IsActive || got.ExpiresAt != nil {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestGetActive_None(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+secrets`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActive(context.Background())
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGetByID_ReturnsRetiredSecret(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	expires := now.Add(168 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "value_encrypted", "is_active", "created_at", "expires_at"}).
		AddRow("s0", []byte("sealed"), false, now, expires)

	mock.ExpectQuery(`SELECT\s+.*FROM\s+secrets\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("s0").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "s0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsActive || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestDeactivateActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(168 * time.Hour)
	mock.ExpectExec(`UPDATE\s+secrets\s+SET\s+is_active\s*=\s*FALSE,\s*expires_at\s*=\s*\$1\s+WHERE\s+is_active\s*=\s*TRUE`).
		WithArgs(expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeactivateActive(context.Background(), expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteExpired_OnlyInactive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`DELETE\s+FROM\s+secrets\s+WHERE\s+is_active\s*=\s*FALSE\s+AND\s+expires_at\s*<\s*\$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 deleted, got %d", n)
	}
}
