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

func newStageRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func stageRows(stages ...models.Stage) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "project_id", "name", "description", "stage_order", "status", "created_by_id", "created_at", "updated_at"})
	for _, s := range stages {
		rows.AddRow(s.ID, s.ProjectID, s.Name, s.Description, s.Order, s.Status, s.CreatedByID, time.Now(), time.Now())
	}
	return rows
}

func TestStageRepositoryMarkCompleted(t *testing.T) {
	db, mock, cleanup := newStageRepoMock(t)
	defer cleanup()

	repo := NewStageRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stages SET status = $2")).
		WithArgs("stage-1", models.StageStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := repo.MarkCompleted(context.Background(), "stage-1")
	require.NoError(t, err)
	require.True(t, done)

	// already COMPLETED: conditional update matches nothing
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stages SET status = $2")).
		WithArgs("stage-1", models.StageStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	done, err = repo.MarkCompleted(context.Background(), "stage-1")
	require.NoError(t, err)
	require.False(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRepositoryActivateIfPending(t *testing.T) {
	db, mock, cleanup := newStageRepoMock(t)
	defer cleanup()

	repo := NewStageRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stages SET status = $2")).
		WithArgs("stage-2", models.StageStatusInProgress, sqlmock.AnyArg(), models.StageStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	activated, err := repo.ActivateIfPending(context.Background(), "stage-2")
	require.NoError(t, err)
	require.True(t, activated)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE stages SET status = $2")).
		WithArgs("stage-3", models.StageStatusInProgress, sqlmock.AnyArg(), models.StageStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	activated, err = repo.ActivateIfPending(context.Background(), "stage-3")
	require.NoError(t, err)
	require.False(t, activated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRepositoryFindByOrder(t *testing.T) {
	db, mock, cleanup := newStageRepoMock(t)
	defer cleanup()

	repo := NewStageRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, project_id, name")).
		WithArgs("proj-1", 2).
		WillReturnRows(stageRows(models.Stage{ID: "stage-2", ProjectID: "proj-1", Name: "Build", Order: 2, Status: models.StageStatusPending, CreatedByID: "user-1"}))

	stage, err := repo.FindByOrder(context.Background(), "proj-1", 2)
	require.NoError(t, err)
	require.NotNil(t, stage)
	require.Equal(t, "stage-2", stage.ID)

	// duplicate order is ambiguous and resolves to nothing
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, project_id, name")).
		WithArgs("proj-1", 3).
		WillReturnRows(stageRows(
			models.Stage{ID: "stage-3a", ProjectID: "proj-1", Name: "QA", Order: 3, Status: models.StageStatusPending, CreatedByID: "user-1"},
			models.Stage{ID: "stage-3b", ProjectID: "proj-1", Name: "QA bis", Order: 3, Status: models.StageStatusPending, CreatedByID: "user-1"},
		))

	stage, err = repo.FindByOrder(context.Background(), "proj-1", 3)
	require.NoError(t, err)
	require.Nil(t, stage)

	// missing order
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, project_id, name")).
		WithArgs("proj-1", 9).
		WillReturnRows(stageRows())

	stage, err = repo.FindByOrder(context.Background(), "proj-1", 9)
	require.NoError(t, err)
	require.Nil(t, stage)
	require.NoError(t, mock.ExpectationsWereMet())
}
