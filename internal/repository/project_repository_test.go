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

func newProjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProjectRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO projects")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	manager := "mgr-1"
	project := &models.Project{
		Title:       "Site refresh",
		Status:      models.ProjectStatusActive,
		ManagerID:   &manager,
		CreatedByID: "admin-1",
	}
	require.NoError(t, repo.Create(context.Background(), project))
	require.NotEmpty(t, project.ID)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "status", "manager_id", "created_by_id", "start_date", "due_date", "created_at", "updated_at"}).
		AddRow(project.ID, project.Title, nil, project.Status, manager, project.CreatedByID, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, status")).
		WithArgs(project.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, project.Title, found.Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryGetManagerMissing(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	mock.ExpectQuery("SELECT u.id").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "role", "active", "last_login", "created_at", "updated_at"}))

	manager, err := repo.GetManager(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Nil(t, manager)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryMarkCompletedIfAllStagesDone(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET status = $2")).
		WithArgs("proj-1", models.ProjectStatusCompleted, sqlmock.AnyArg(), models.StageStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.MarkCompletedIfAllStagesDone(context.Background(), "proj-1")
	require.NoError(t, err)
	require.True(t, won)

	// a concurrent caller already flipped the project
	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET status = $2")).
		WithArgs("proj-1", models.ProjectStatusCompleted, sqlmock.AnyArg(), models.StageStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err = repo.MarkCompletedIfAllStagesDone(context.Background(), "proj-1")
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}
