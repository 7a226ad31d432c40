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

type projectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetWithNames(ctx context.Context, id string) (*models.ProjectWithNames, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.ProjectWithNames, error)
	Update(ctx context.Context, id string, changes map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

// ProjectService manages projects.
type ProjectService struct {
	projects      projectRepository
	users         taskUserFinder
	notifications actionDispatcher
	activity      activityWriter
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewProjectService constructs the service.
func NewProjectService(projects projectRepository, users taskUserFinder, notifications actionDispatcher, activity activityWriter, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		projects:      projects,
		users:         users,
		notifications: notifications,
		activity:      activity,
		validator:     validate,
		logger:        logger,
	}
}

// Create inserts a project and announces it.
func (s *ProjectService) Create(ctx context.Context, actor models.UserSnapshot, req dto.CreateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}

	project := &models.Project{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.ProjectStatusActive,
		ManagerID:   req.ManagerID,
		CreatedByID: actor.ID,
	}
	if req.ManagerID != nil && *req.ManagerID != "" {
		manager, err := s.users.FindByID(ctx, *req.ManagerID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "manager not found")
		}
		if manager.Role != models.RoleProjectManager && manager.Role != models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrValidation, "manager must hold the PROJECT_MANAGER role")
		}
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
		}
		project.StartDate = start
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be YYYY-MM-DD")
		}
		project.DueDate = due
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionCreate, project.ID, fmt.Sprintf("Project created: %s", project.Title))

	if s.notifications != nil {
		s.notifications.Dispatch(ctx, models.ActionContext{
			ActionType:  models.ActionProjectCreated,
			PerformedBy: actor,
			Entity: models.EntitySnapshot{
				Kind:        models.EntityProject,
				ID:          project.ID,
				Title:       project.Title,
				Description: derefString(project.Description),
				Status:      string(project.Status),
				DueDate:     project.DueDate,
			},
			ProjectID: project.ID,
			Meta:      models.ProjectMeta{},
		})
	}
	return project, nil
}

// Get returns a project with joined display names.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.ProjectWithNames, error) {
	project, err := s.projects.GetWithNames(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

// List returns projects visible to the caller.
func (s *ProjectService) List(ctx context.Context, caller models.UserSnapshot, query dto.ProjectQuery) ([]models.ProjectWithNames, error) {
	filter := models.ProjectFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if caller.Role != models.RoleAdmin {
		filter.MemberID = caller.ID
	}
	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	return projects, nil
}

// Update applies changes to a project.
func (s *ProjectService) Update(ctx context.Context, actor models.UserSnapshot, id string, req dto.UpdateProjectRequest) (*models.ProjectWithNames, error) {
	changes := make(map[string]interface{})
	if req.Title != nil {
		changes["title"] = *req.Title
	}
	if req.Description != nil {
		changes["description"] = *req.Description
	}
	if req.ManagerID != nil {
		changes["manager_id"] = *req.ManagerID
	}
	if req.Status != nil {
		switch status := models.ProjectStatus(*req.Status); status {
		case models.ProjectStatusActive, models.ProjectStatusCompleted, models.ProjectStatusArchived:
			changes["status"] = status
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unrecognized project status %q", *req.Status))
		}
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
		}
		changes["start_date"] = start
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be YYYY-MM-DD")
		}
		changes["due_date"] = due
	}
	if len(changes) == 0 {
		return s.Get(ctx, id)
	}

	if err := s.projects.Update(ctx, id, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionUpdate, id, "Project updated")

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifications != nil {
		s.notifications.Dispatch(ctx, models.ActionContext{
			ActionType:  models.ActionProjectUpdated,
			PerformedBy: actor,
			Entity: models.EntitySnapshot{
				Kind:   models.EntityProject,
				ID:     updated.ID,
				Title:  updated.Title,
				Status: string(updated.Status),
			},
			ProjectID: updated.ID,
			Meta:      models.UpdateMeta{ProjectName: updated.Title, Changes: describeChanges(changes)},
		})
	}
	return updated, nil
}

// Delete removes a project.
func (s *ProjectService) Delete(ctx context.Context, actor models.UserSnapshot, id string) error {
	project, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionDelete, id, fmt.Sprintf("Project deleted: %s", project.Title))
	return nil
}

func (s *ProjectService) recordActivity(ctx context.Context, userID, action, projectID, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		EntityType: "project",
		EntityID:   projectID,
		Details:    details,
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Error("project audit entry failed", zap.Error(err))
	}
}
