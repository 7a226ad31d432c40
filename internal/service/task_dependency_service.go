package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type dependencyStore interface {
	List(ctx context.Context, taskID string) ([]models.TaskDependency, error)
	Exists(ctx context.Context, taskID, dependsOnTaskID string) (bool, error)
	Create(ctx context.Context, dep *models.TaskDependency) error
	Delete(ctx context.Context, id string) error
}

type dependencyTaskFinder interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
}

// TaskDependencyService manages ordering links between tasks.
type TaskDependencyService struct {
	deps     dependencyStore
	tasks    dependencyTaskFinder
	activity activityWriter
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTaskDependencyService constructs the service.
func NewTaskDependencyService(deps dependencyStore, tasks dependencyTaskFinder, activity activityWriter, validate *validator.Validate, logger *zap.Logger) *TaskDependencyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskDependencyService{deps: deps, tasks: tasks, activity: activity, validate: validate, logger: logger}
}

// List returns dependency links, optionally filtered to one task.
func (s *TaskDependencyService) List(ctx context.Context, taskID string) ([]models.TaskDependency, error) {
	deps, err := s.deps.List(ctx, taskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list task dependencies")
	}
	return deps, nil
}

// Create links a task to a prerequisite task. A task cannot depend on itself,
// both tasks must exist, and a pair can only be linked once.
func (s *TaskDependencyService) Create(ctx context.Context, actor models.UserSnapshot, req dto.CreateTaskDependencyRequest) (*models.TaskDependency, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "task_id and depends_on_task_id are required")
	}
	if req.TaskID == req.DependsOnTaskID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a task cannot depend on itself")
	}

	task, err := s.findTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	dependsOn, err := s.findTask(ctx, req.DependsOnTaskID)
	if err != nil {
		return nil, err
	}

	exists, err := s.deps.Exists(ctx, req.TaskID, req.DependsOnTaskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing dependency")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, "this dependency already exists")
	}

	dep := &models.TaskDependency{
		TaskID:          req.TaskID,
		DependsOnTaskID: req.DependsOnTaskID,
		Type:            req.DependencyType,
	}
	if dep.Type == "" {
		dep.Type = models.DependencyFinishToStart
	}
	if err := s.deps.Create(ctx, dep); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create dependency")
	}
	dep.Task = &models.TaskRef{ID: task.ID, Title: task.Title, Status: task.Status}
	dep.DependsOnTask = &models.TaskRef{ID: dependsOn.ID, Title: dependsOn.Title, Status: dependsOn.Status}

	s.recordActivity(ctx, actor.ID, models.ActivityActionCreate, dep.ID,
		fmt.Sprintf("Created dependency: Task %s depends on Task %s", task.Title, dependsOn.Title))
	return dep, nil
}

// Delete removes a dependency link.
func (s *TaskDependencyService) Delete(ctx context.Context, actor models.UserSnapshot, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "a dependency id is required")
	}
	if err := s.deps.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "dependency not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete dependency")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionDelete, id, fmt.Sprintf("Deleted task dependency %s", id))
	return nil
}

func (s *TaskDependencyService) findTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("task %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	return task, nil
}

func (s *TaskDependencyService) recordActivity(ctx context.Context, userID, action, depID, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		EntityType: "task_dependency",
		EntityID:   depID,
		Details:    details,
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Warn("dependency audit entry failed", zap.Error(err))
	}
}
