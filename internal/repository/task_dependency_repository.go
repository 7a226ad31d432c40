package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kerane/projectdesk-api/internal/models"
)

// TaskDependencyRepository persists ordering links between tasks.
type TaskDependencyRepository struct {
	db *sqlx.DB
}

// NewTaskDependencyRepository constructs the repository.
func NewTaskDependencyRepository(db *sqlx.DB) *TaskDependencyRepository {
	return &TaskDependencyRepository{db: db}
}

type taskDependencyRow struct {
	ID              string            `db:"id"`
	TaskID          string            `db:"task_id"`
	DependsOnTaskID string            `db:"depends_on_task_id"`
	Type            string            `db:"dependency_type"`
	CreatedAt       time.Time         `db:"created_at"`
	TaskTitle       string            `db:"task_title"`
	TaskStatus      models.TaskStatus `db:"task_status"`
	DependsTitle    string            `db:"depends_title"`
	DependsStatus   models.TaskStatus `db:"depends_status"`
}

// List returns dependencies newest first, optionally filtered by task.
// Each row carries the linked tasks' titles and statuses.
func (r *TaskDependencyRepository) List(ctx context.Context, taskID string) ([]models.TaskDependency, error) {
	query := `SELECT d.id, d.task_id, d.depends_on_task_id, d.dependency_type, d.created_at,
		t.title AS task_title, t.status AS task_status,
		p.title AS depends_title, p.status AS depends_status
	FROM task_dependencies d
	JOIN tasks t ON t.id = d.task_id
	JOIN tasks p ON p.id = d.depends_on_task_id`
	args := make([]interface{}, 0, 1)
	if taskID != "" {
		query += ` WHERE d.task_id = $1`
		args = append(args, taskID)
	}
	query += ` ORDER BY d.created_at DESC`

	var rows []taskDependencyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list task dependencies: %w", err)
	}
	deps := make([]models.TaskDependency, 0, len(rows))
	for _, row := range rows {
		deps = append(deps, models.TaskDependency{
			ID:              row.ID,
			TaskID:          row.TaskID,
			DependsOnTaskID: row.DependsOnTaskID,
			Type:            row.Type,
			CreatedAt:       row.CreatedAt,
			Task:            &models.TaskRef{ID: row.TaskID, Title: row.TaskTitle, Status: row.TaskStatus},
			DependsOnTask:   &models.TaskRef{ID: row.DependsOnTaskID, Title: row.DependsTitle, Status: row.DependsStatus},
		})
	}
	return deps, nil
}

// Exists reports whether the exact (task, depends-on) pair is already linked.
func (r *TaskDependencyRepository) Exists(ctx context.Context, taskID, dependsOnTaskID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM task_dependencies WHERE task_id = $1 AND depends_on_task_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, taskID, dependsOnTaskID); err != nil {
		return false, fmt.Errorf("check task dependency: %w", err)
	}
	return exists, nil
}

// Create inserts a dependency link.
func (r *TaskDependencyRepository) Create(ctx context.Context, dep *models.TaskDependency) error {
	if dep.ID == "" {
		dep.ID = uuid.NewString()
	}
	if dep.Type == "" {
		dep.Type = models.DependencyFinishToStart
	}
	dep.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO task_dependencies (id, task_id, depends_on_task_id, dependency_type, created_at)
	VALUES (:id, :task_id, :depends_on_task_id, :dependency_type, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dep); err != nil {
		return fmt.Errorf("create task dependency: %w", err)
	}
	return nil
}

// Delete removes a dependency link.
func (r *TaskDependencyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task dependency: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
