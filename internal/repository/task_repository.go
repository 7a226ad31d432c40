package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kerane/projectdesk-api/internal/models"
)

// TaskRepository persists tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.due_date,
       t.assigned_to_id, t.project_id, t.stage_id, t.created_by_id, t.completed_at, t.created_at, t.updated_at`

// Create inserts a new task row.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	const query = `INSERT INTO tasks (id, title, description, status, priority, due_date, assigned_to_id, project_id, stage_id, created_by_id, completed_at, created_at, updated_at)
	VALUES (:id, :title, :description, :status, :priority, :due_date, :assigned_to_id, :project_id, :stage_id, :created_by_id, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetByID fetches a task by identifier.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetWithNames fetches a task with assignee/creator display names joined in.
func (r *TaskRepository) GetWithNames(ctx context.Context, id string) (*models.TaskWithNames, error) {
	query := `SELECT ` + taskColumns + `, a.name AS assigned_to_name, c.name AS created_by_name
	FROM tasks t
	LEFT JOIN users a ON a.id = t.assigned_to_id
	LEFT JOIN users c ON c.id = t.created_by_id
	WHERE t.id = $1`
	var task models.TaskWithNames
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns tasks matching the filter (latest first). When
// AccessibleProjectIDs or CallerID are set, results are restricted to tasks
// the caller is assigned to or tasks inside accessible projects.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.TaskWithNames, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + taskColumns + `, a.name AS assigned_to_name, c.name AS created_by_name
	FROM tasks t
	LEFT JOIN users a ON a.id = t.assigned_to_id
	LEFT JOIN users c ON c.id = t.created_by_id`)

	conditions := make([]string, 0, 5)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("t.project_id = $%d", len(args)))
	}
	if filter.StageID != "" {
		args = append(args, filter.StageID)
		conditions = append(conditions, fmt.Sprintf("t.stage_id = $%d", len(args)))
	}
	if filter.AssignedToID != "" {
		args = append(args, filter.AssignedToID)
		conditions = append(conditions, fmt.Sprintf("t.assigned_to_id = $%d", len(args)))
	}
	if filter.CallerID != "" {
		if len(filter.AccessibleProjectIDs) > 0 {
			args = append(args, filter.CallerID)
			callerArg := len(args)
			placeholders := make([]string, len(filter.AccessibleProjectIDs))
			for i, id := range filter.AccessibleProjectIDs {
				args = append(args, id)
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			conditions = append(conditions, fmt.Sprintf("(t.assigned_to_id = $%d OR t.project_id IN (%s))",
				callerArg, strings.Join(placeholders, ",")))
		} else {
			args = append(args, filter.CallerID)
			conditions = append(conditions, fmt.Sprintf("t.assigned_to_id = $%d", len(args)))
		}
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY t.created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var tasks []models.TaskWithNames
	if err := r.db.SelectContext(ctx, &tasks, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Update persists the provided columns.
func (r *TaskRepository) Update(ctx context.Context, id string, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}
	setParts := make([]string, 0, len(changes)+1)
	args := map[string]interface{}{"id": id, "updated_at": time.Now().UTC()}
	for column, value := range changes {
		setParts = append(setParts, fmt.Sprintf("%s = :%s", column, column))
		args[column] = value
	}
	setParts = append(setParts, "updated_at = :updated_at")
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check task update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ForceStatus sets the task status unconditionally. Used by the confirmation
// executor, where the transition is forced rather than validated.
func (r *TaskRepository) ForceStatus(ctx context.Context, id string, status models.TaskStatus) error {
	const query = `UPDATE tasks SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("force task status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check task status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountIncompleteByStage counts the stage's tasks not yet COMPLETED.
func (r *TaskRepository) CountIncompleteByStage(ctx context.Context, stageID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tasks WHERE stage_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, stageID, models.TaskStatusCompleted); err != nil {
		return 0, fmt.Errorf("count incomplete tasks: %w", err)
	}
	return count, nil
}

// Delete removes a task row.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// CountByStatus returns task totals grouped by status.
func (r *TaskRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS total FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
