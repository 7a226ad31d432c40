package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kerane/projectdesk-api/internal/models"
)

// ProjectRepository persists projects and membership lookups.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project row.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.ProjectStatusActive
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	const query = `INSERT INTO projects (id, title, description, status, manager_id, created_by_id, start_date, due_date, created_at, updated_at)
	VALUES (:id, :title, :description, :status, :manager_id, :created_by_id, :start_date, :due_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetByID fetches a project by identifier.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	const query = `SELECT id, title, description, status, manager_id, created_by_id, start_date, due_date, created_at, updated_at
	FROM projects WHERE id = $1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetWithNames fetches a project with manager/creator display names joined in.
func (r *ProjectRepository) GetWithNames(ctx context.Context, id string) (*models.ProjectWithNames, error) {
	const query = `SELECT p.id, p.title, p.description, p.status, p.manager_id, p.created_by_id,
	       p.start_date, p.due_date, p.created_at, p.updated_at,
	       m.name AS manager_name, c.name AS created_by_name
	FROM projects p
	LEFT JOIN users m ON m.id = p.manager_id
	LEFT JOIN users c ON c.id = p.created_by_id
	WHERE p.id = $1`
	var project models.ProjectWithNames
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetManager resolves the project's manager, or nil when the project has none.
func (r *ProjectRepository) GetManager(ctx context.Context, projectID string) (*models.User, error) {
	const query = `SELECT u.id, u.email, u.password_hash, u.name, u.role, u.active, u.last_login, u.created_at, u.updated_at
	FROM users u
	JOIN projects p ON p.manager_id = u.id
	WHERE p.id = $1`
	var manager models.User
	if err := r.db.GetContext(ctx, &manager, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project manager: %w", err)
	}
	return &manager, nil
}

// List returns projects matching the filter (latest first).
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.ProjectWithNames, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT p.id, p.title, p.description, p.status, p.manager_id, p.created_by_id,
	       p.start_date, p.due_date, p.created_at, p.updated_at,
	       m.name AS manager_name, c.name AS created_by_name
	FROM projects p
	LEFT JOIN users m ON m.id = p.manager_id
	LEFT JOIN users c ON c.id = p.created_by_id`)

	conditions := make([]string, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(p.created_by_id = $%d OR p.manager_id = $%d OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $%d))",
			n, n, n))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY p.created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var projects []models.ProjectWithNames
	if err := r.db.SelectContext(ctx, &projects, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListAccessibleIDs returns the IDs of projects the user created, manages or
// belongs to as a member.
func (r *ProjectRepository) ListAccessibleIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT p.id FROM projects p
	WHERE p.created_by_id = $1 OR p.manager_id = $1
	   OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $1)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list accessible projects: %w", err)
	}
	return ids, nil
}

// Update persists the provided columns. Only non-nil fields are written.
func (r *ProjectRepository) Update(ctx context.Context, id string, changes map[string]interface{}) error {
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
	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check project update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkCompletedIfAllStagesDone flips the project to COMPLETED only when it is
// not already completed and no stage remains unfinished. The conditional
// update makes the project-done cascade single-flight under concurrent stage
// completions: exactly one caller observes true.
func (r *ProjectRepository) MarkCompletedIfAllStagesDone(ctx context.Context, projectID string) (bool, error) {
	const query = `UPDATE projects SET status = $2, updated_at = $3
	WHERE id = $1 AND status <> $2
	  AND NOT EXISTS (SELECT 1 FROM stages s WHERE s.project_id = $1 AND s.status <> $4)`
	result, err := r.db.ExecContext(ctx, query, projectID, models.ProjectStatusCompleted, time.Now().UTC(), models.StageStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("mark project completed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check project completion rows: %w", err)
	}
	return rows == 1, nil
}

// Delete removes a project row.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// CountByStatus returns project totals grouped by status.
func (r *ProjectRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS total FROM projects GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count projects by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan project count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
