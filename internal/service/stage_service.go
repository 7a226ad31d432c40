package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type stageRepository interface {
	Create(ctx context.Context, stage *models.Stage) error
	GetByID(ctx context.Context, id string) (*models.Stage, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Stage, error)
	FindByOrder(ctx context.Context, projectID string, order int) (*models.Stage, error)
	Update(ctx context.Context, id string, changes map[string]interface{}) error
	MarkCompleted(ctx context.Context, id string) (bool, error)
	ActivateIfPending(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type stageTaskCounter interface {
	CountIncompleteByStage(ctx context.Context, stageID string) (int, error)
}

type stageProjectStore interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetManager(ctx context.Context, projectID string) (*models.User, error)
	MarkCompletedIfAllStagesDone(ctx context.Context, projectID string) (bool, error)
}

type actionDispatcher interface {
	Dispatch(ctx context.Context, action models.ActionContext)
}

type inAppNotifier interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// StageService manages project stages, including the completion cascade.
type StageService struct {
	stages        stageRepository
	tasks         stageTaskCounter
	projects      stageProjectStore
	users         taskUserFinder
	confirmations tokenIssuer
	notifications actionDispatcher
	inApp         inAppNotifier
	activity      activityWriter
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewStageService constructs the service.
func NewStageService(stages stageRepository, tasks stageTaskCounter, projects stageProjectStore, users taskUserFinder, confirmations tokenIssuer, notifications actionDispatcher, inApp inAppNotifier, activity activityWriter, validate *validator.Validate, logger *zap.Logger) *StageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageService{
		stages:        stages,
		tasks:         tasks,
		projects:      projects,
		users:         users,
		confirmations: confirmations,
		notifications: notifications,
		inApp:         inApp,
		activity:      activity,
		validator:     validate,
		logger:        logger,
	}
}

// Create adds a stage to a project.
func (s *StageService) Create(ctx context.Context, actor models.UserSnapshot, req dto.CreateStageRequest) (*models.Stage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stage payload")
	}
	if _, err := s.projects.GetByID(ctx, req.ProjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	stage := &models.Stage{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Order:       req.Order,
		Status:      models.StageStatusPending,
		CreatedByID: actor.ID,
	}
	if err := s.stages.Create(ctx, stage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stage")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionCreate, stage.ID, fmt.Sprintf("Stage created: %s", stage.Name))
	return stage, nil
}

// Get returns a stage by id.
func (s *StageService) Get(ctx context.Context, id string) (*models.Stage, error) {
	stage, err := s.stages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage")
	}
	return stage, nil
}

// ListByProject returns the project's stages in order.
func (s *StageService) ListByProject(ctx context.Context, projectID string) ([]models.Stage, error) {
	stages, err := s.stages.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stages")
	}
	return stages, nil
}

// Update changes stage fields. Status updates must use canonical values; a
// status change notifies the stage creator and, when a manager or admin drove
// it, issues an acknowledgement token for the creator.
func (s *StageService) Update(ctx context.Context, actor models.UserSnapshot, id string, req dto.UpdateStageRequest) (*models.Stage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stage payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := make(map[string]interface{})
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.Description != nil {
		changes["description"] = *req.Description
	}
	if req.Order != nil {
		changes["stage_order"] = *req.Order
	}
	statusChanged := false
	if req.Status != nil {
		status, err := models.ParseStageStatus(*req.Status)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if status != current.Status {
			changes["status"] = status
			statusChanged = true
		}
	}
	if len(changes) == 0 {
		return current, nil
	}
	if err := s.stages.Update(ctx, id, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stage")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionUpdate, id, "Stage updated")
	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if statusChanged {
		s.notifyStatusChange(ctx, actor, current.Status, updated, req.Comment)
	}
	return updated, nil
}

// notifyStatusChange dispatches the stage status-change notification. It runs
// after the update committed, so every failure here is logged and swallowed.
func (s *StageService) notifyStatusChange(ctx context.Context, actor models.UserSnapshot, oldStatus models.StageStatus, stage *models.Stage, comment string) {
	projectName := ""
	if project, err := s.projects.GetByID(ctx, stage.ProjectID); err != nil {
		s.logger.Warn("project lookup failed for stage notification", zap.String("project_id", stage.ProjectID), zap.Error(err))
	} else {
		projectName = project.Title
	}

	token := ""
	var affected []models.UserSnapshot
	if s.users != nil && stage.CreatedByID != "" && stage.CreatedByID != actor.ID {
		creator, err := s.users.FindByID(ctx, stage.CreatedByID)
		if err != nil {
			s.logger.Warn("stage creator lookup failed", zap.String("user_id", stage.CreatedByID), zap.Error(err))
		} else {
			affected = append(affected, creator.Snapshot())
			managerDriven := actor.Role == models.RoleProjectManager || actor.Role == models.RoleAdmin
			if s.confirmations != nil && managerDriven && creator.Role == models.RoleEmployee {
				token = s.confirmations.Issue(ctx, models.ConfirmStageStatusChange, creator.ID, "stage", stage.ID, models.TokenMetadata{
					StageName:   stage.Name,
					ProjectName: projectName,
					OldStatus:   string(oldStatus),
					NewStatus:   string(stage.Status),
				})
			}
		}
	}

	if s.notifications == nil {
		return
	}
	s.notifications.Dispatch(ctx, models.ActionContext{
		ActionType:  models.ActionStageUpdated,
		PerformedBy: actor,
		Entity: models.EntitySnapshot{
			Kind:        models.EntityStage,
			ID:          stage.ID,
			Title:       stage.Name,
			Description: derefString(stage.Description),
			Status:      string(stage.Status),
		},
		AffectedUsers: affected,
		ProjectID:     stage.ProjectID,
		Meta: models.StatusChangeMeta{
			ProjectName:       projectName,
			ProjectID:         stage.ProjectID,
			OldStatus:         string(oldStatus),
			NewStatus:         string(stage.Status),
			Comment:           comment,
			ConfirmationToken: token,
		},
	})
}

// Delete removes a stage.
func (s *StageService) Delete(ctx context.Context, actor models.UserSnapshot, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.stages.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete stage")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionDelete, id, "Stage deleted")
	return nil
}

// Complete marks a stage COMPLETED and runs the completion cascade:
//
//  1. every task of the stage must already be COMPLETED, otherwise the call
//     is rejected with the incomplete count and the stage is left untouched;
//  2. the stage is flipped COMPLETED;
//  3. the project's manager is notified;
//  4. if every stage of the project is now COMPLETED, the project itself is
//     flipped COMPLETED through a conditional update so that exactly one of
//     any concurrent completions fires the "project done" in-app notification;
//  5. the stage with order+1 is activated iff it exists, is unique, and is
//     still PENDING.
//
// Notification and cascade failures after step 2 are logged and swallowed;
// the completed stage is never rolled back.
func (s *StageService) Complete(ctx context.Context, actor models.UserSnapshot, stageID string) (*models.StageCompletionResult, error) {
	stage, err := s.Get(ctx, stageID)
	if err != nil {
		return nil, err
	}

	incomplete, err := s.tasks.CountIncompleteByStage(ctx, stageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check stage tasks")
	}
	if incomplete > 0 {
		return nil, appErrors.Clone(appErrors.ErrIncompleteTasks,
			fmt.Sprintf("%d task(s) in this stage are not completed yet", incomplete))
	}

	flipped, err := s.stages.MarkCompleted(ctx, stageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete stage")
	}
	if !flipped {
		return nil, appErrors.Clone(appErrors.ErrConflict, "stage is already completed")
	}
	stage.Status = models.StageStatusCompleted

	s.recordActivity(ctx, actor.ID, models.ActivityActionComplete, stage.ID, fmt.Sprintf("Stage completed: %s", stage.Name))

	result := &models.StageCompletionResult{Stage: stage}
	projectName := ""
	if project, err := s.projects.GetByID(ctx, stage.ProjectID); err == nil {
		projectName = project.Title
	}

	result.AllStagesCompleted = s.checkProjectDone(ctx, stage.ProjectID, projectName)
	result.NextStage, result.NextStageActivated = s.activateNextStage(ctx, stage)

	nextName := ""
	if result.NextStage != nil {
		nextName = result.NextStage.Name
	}
	if s.notifications != nil {
		// The manager goes into the affected set explicitly so they are
		// reached regardless of who completed the stage.
		var affected []models.UserSnapshot
		if manager, err := s.projects.GetManager(ctx, stage.ProjectID); err != nil {
			s.logger.Warn("manager lookup failed for stage completion", zap.String("project_id", stage.ProjectID), zap.Error(err))
		} else if manager != nil {
			affected = append(affected, manager.Snapshot())
		}
		s.notifications.Dispatch(ctx, models.ActionContext{
			ActionType:  models.ActionStageCompleted,
			PerformedBy: actor,
			Entity: models.EntitySnapshot{
				Kind:   models.EntityStage,
				ID:     stage.ID,
				Title:  stage.Name,
				Status: string(stage.Status),
			},
			AffectedUsers: affected,
			ProjectID:     stage.ProjectID,
			Meta: models.StageCompletionMeta{
				ProjectName:   projectName,
				ProjectID:     stage.ProjectID,
				NextStageName: nextName,
			},
		})
	}
	return result, nil
}

// checkProjectDone re-reads stage state through a conditional project update.
// The update matches only when no stage remains unfinished, so under
// concurrent stage completions at most one caller observes true and creates
// the in-app notification.
func (s *StageService) checkProjectDone(ctx context.Context, projectID, projectName string) bool {
	won, err := s.projects.MarkCompletedIfAllStagesDone(ctx, projectID)
	if err != nil {
		s.logger.Error("project completion check failed", zap.String("project_id", projectID), zap.Error(err))
		return false
	}
	if !won {
		return false
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		s.logger.Error("completed project lookup failed", zap.String("project_id", projectID), zap.Error(err))
		return true
	}
	targets := make(map[string]struct{})
	if project.ManagerID != nil && *project.ManagerID != "" {
		targets[*project.ManagerID] = struct{}{}
	}
	if project.CreatedByID != "" {
		targets[project.CreatedByID] = struct{}{}
	}
	meta, _ := json.Marshal(map[string]string{"project_id": projectID})
	for userID := range targets {
		notification := &models.Notification{
			UserID:   userID,
			Type:     models.NotificationProjectCompleted,
			Title:    "Project completed",
			Message:  fmt.Sprintf("All stages of %s are completed.", fallback(projectName, "the project")),
			Metadata: meta,
		}
		if s.inApp == nil {
			continue
		}
		if err := s.inApp.Create(ctx, notification); err != nil {
			s.logger.Error("project-done notification failed",
				zap.String("project_id", projectID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return true
}

// activateNextStage advances the stage at order+1 when it exists, is unique
// and is still PENDING. Ambiguous or missing successors activate nothing.
func (s *StageService) activateNextStage(ctx context.Context, completed *models.Stage) (*models.Stage, bool) {
	next, err := s.stages.FindByOrder(ctx, completed.ProjectID, completed.Order+1)
	if err != nil {
		s.logger.Error("next stage lookup failed", zap.String("stage_id", completed.ID), zap.Error(err))
		return nil, false
	}
	if next == nil {
		return nil, false
	}
	activated, err := s.stages.ActivateIfPending(ctx, next.ID)
	if err != nil {
		s.logger.Error("next stage activation failed", zap.String("stage_id", next.ID), zap.Error(err))
		return next, false
	}
	if activated {
		next.Status = models.StageStatusInProgress
		s.recordActivity(ctx, completed.CreatedByID, models.ActivityActionStart, next.ID, fmt.Sprintf("Stage started: %s", next.Name))
	}
	return next, activated
}

func (s *StageService) recordActivity(ctx context.Context, userID, action, stageID, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		EntityType: "stage",
		EntityID:   stageID,
		Details:    details,
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Error("stage audit entry failed", zap.Error(err))
	}
}
