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

// StageRepository persists project stages.
type StageRepository struct {
	db *sqlx.DB
}

// NewStageRepository constructs the repository.
func NewStageRepository(db *sqlx.DB) *StageRepository {
	return &StageRepository{db: db}
}

// Create inserts a new stage row.
func (r *StageRepository) Create(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	if stage.Status == "" {
		stage.Status = models.StageStatusPending
	}
	now := time.Now().UTC()
	stage.CreatedAt = now
	stage.UpdatedAt = now
	const query = `INSERT INTO stages (id, project_id, name, description, stage_order, status, created_by_id, created_at, updated_at)
	VALUES (:id, :project_id, :name, :description, :stage_order, :status, :created_by_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, stage); err != nil {
		return fmt.Errorf("create stage: %w", err)
	}
	return nil
}

// GetByID fetches a stage by identifier.
func (r *StageRepository) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	const query = `SELECT id, project_id, name, description, stage_order, status, created_by_id, created_at, updated_at
	FROM stages WHERE id = $1`
	var stage models.Stage
	if err := r.db.GetContext(ctx, &stage, query, id); err != nil {
		return nil, err
	}
	return &stage, nil
}

// ListByProject returns the project's stages in order.
func (r *StageRepository) ListByProject(ctx context.Context, projectID string) ([]models.Stage, error) {
	const query = `SELECT id, project_id, name, description, stage_order, status, created_by_id, created_at, updated_at
	FROM stages WHERE project_id = $1 ORDER BY stage_order, created_at`
	var stages []models.Stage
	if err := r.db.SelectContext(ctx, &stages, query, projectID); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

// FindByOrder returns the single stage with the given order within a project.
// When no stage or more than one stage carries the order, it returns nil so
// that an ambiguous successor activates nothing.
func (r *StageRepository) FindByOrder(ctx context.Context, projectID string, order int) (*models.Stage, error) {
	const query = `SELECT id, project_id, name, description, stage_order, status, created_by_id, created_at, updated_at
	FROM stages WHERE project_id = $1 AND stage_order = $2`
	var stages []models.Stage
	if err := r.db.SelectContext(ctx, &stages, query, projectID, order); err != nil {
		return nil, fmt.Errorf("find stage by order: %w", err)
	}
	if len(stages) != 1 {
		return nil, nil
	}
	return &stages[0], nil
}

// Update persists the provided columns.
func (r *StageRepository) Update(ctx context.Context, id string, changes map[string]interface{}) error {
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
	query := fmt.Sprintf("UPDATE stages SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check stage update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkCompleted flips the stage to COMPLETED unless it already is. Returns
// false when another request completed it first.
func (r *StageRepository) MarkCompleted(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE stages SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $2`
	result, err := r.db.ExecContext(ctx, query, id, models.StageStatusCompleted, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check stage completion rows: %w", err)
	}
	return rows == 1, nil
}

// ActivateIfPending advances a PENDING stage to IN_PROGRESS. A stage in any
// other status is left untouched.
func (r *StageRepository) ActivateIfPending(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE stages SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.StageStatusInProgress, time.Now().UTC(), models.StageStatusPending)
	if err != nil {
		return false, fmt.Errorf("activate stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check stage activation rows: %w", err)
	}
	return rows == 1, nil
}

// Delete removes a stage row.
func (r *StageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM stages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	return nil
}
