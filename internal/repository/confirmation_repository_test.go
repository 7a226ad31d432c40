package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kerane/projectdesk-api/internal/models"
)

func newConfirmationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestConfirmationRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newConfirmationRepoMock(t)
	defer cleanup()

	repo := NewConfirmationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO confirmation_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.ConfirmationToken{
		Token:      "abcd1234",
		Type:       models.ConfirmTaskAssignment,
		UserID:     "user-1",
		EntityType: "task",
		EntityID:   "task-1",
		ExpiresAt:  time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), token))
	require.NotEmpty(t, token.ID)

	rows := sqlmock.NewRows([]string{"id", "token", "type", "user_id", "entity_type", "entity_id", "metadata", "confirmed", "confirmed_at", "expires_at", "created_at"}).
		AddRow(token.ID, token.Token, token.Type, token.UserID, token.EntityType, token.EntityID, nil, false, nil, token.ExpiresAt, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, token, type, user_id")).
		WithArgs(token.Token).
		WillReturnRows(rows)

	found, err := repo.GetByToken(context.Background(), token.Token)
	require.NoError(t, err)
	require.Equal(t, token.UserID, found.UserID)
	require.False(t, found.Confirmed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmationRepositoryMarkConfirmed(t *testing.T) {
	db, mock, cleanup := newConfirmationRepoMock(t)
	defer cleanup()

	repo := NewConfirmationRepository(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE confirmation_tokens SET confirmed = TRUE")).
		WithArgs("tok-fresh", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.MarkConfirmed(context.Background(), "tok-fresh", now)
	require.NoError(t, err)
	require.True(t, ok)

	// second attempt matches no row: the conditional update saw confirmed=TRUE
	mock.ExpectExec(regexp.QuoteMeta("UPDATE confirmation_tokens SET confirmed = TRUE")).
		WithArgs("tok-fresh", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.MarkConfirmed(context.Background(), "tok-fresh", now)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
