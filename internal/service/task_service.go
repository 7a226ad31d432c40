package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type taskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetWithNames(ctx context.Context, id string) (*models.TaskWithNames, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.TaskWithNames, error)
	Update(ctx context.Context, id string, changes map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type taskProjectStore interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListAccessibleIDs(ctx context.Context, userID string) ([]string, error)
}

type taskUserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type tokenIssuer interface {
	Issue(ctx context.Context, confirmType models.ConfirmationType, userID, entityType, entityID string, meta models.TokenMetadata) string
}

// TaskService manages tasks and drives the assignment/status-change
// notification flows.
type TaskService struct {
	tasks         taskRepository
	projects      taskProjectStore
	users         taskUserFinder
	confirmations tokenIssuer
	notifications actionDispatcher
	activity      activityWriter
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewTaskService constructs the service.
func NewTaskService(tasks taskRepository, projects taskProjectStore, users taskUserFinder, confirmations tokenIssuer, notifications actionDispatcher, activity activityWriter, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		tasks:         tasks,
		projects:      projects,
		users:         users,
		confirmations: confirmations,
		notifications: notifications,
		activity:      activity,
		validator:     validate,
		logger:        logger,
	}
}

// Create inserts a task. When the task is assigned at creation, a
// confirmation token is issued for the assignee and an assignment
// notification goes out.
func (s *TaskService) Create(ctx context.Context, actor models.UserSnapshot, req dto.CreateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	project, err := s.projects.GetByID(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}

	task := &models.Task{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     models.TaskPriorityMedium,
		AssignedToID: req.AssignedToID,
		ProjectID:    req.ProjectID,
		StageID:      req.StageID,
		CreatedByID:  actor.ID,
	}
	if req.Status != "" {
		status, err := models.ParseTaskStatus(req.Status)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		task.Status = status
	}
	if req.Priority != "" {
		priority, err := parsePriority(req.Priority)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		task.Priority = priority
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be YYYY-MM-DD")
		}
		task.DueDate = due
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionCreate, task.ID, fmt.Sprintf("Task created: %s", task.Title))

	if task.AssignedToID != nil && *task.AssignedToID != "" {
		s.notifyAssignment(ctx, actor, task, project, models.ActionTaskCreated)
	}
	return task, nil
}

// Get returns a task with joined display names.
func (s *TaskService) Get(ctx context.Context, id string) (*models.TaskWithNames, error) {
	task, err := s.tasks.GetWithNames(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	return task, nil
}

// List returns tasks visible to the caller. Admins see everything; other
// roles see tasks assigned to them or inside projects they can access.
func (s *TaskService) List(ctx context.Context, caller models.UserSnapshot, query dto.TaskQuery) ([]models.TaskWithNames, error) {
	filter := models.TaskFilter{
		Status:    query.Status,
		ProjectID: query.ProjectID,
		StageID:   query.StageID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if caller.Role != models.RoleAdmin {
		accessible, err := s.projects.ListAccessibleIDs(ctx, caller.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve accessible projects")
		}
		filter.CallerID = caller.ID
		filter.AccessibleProjectIDs = accessible
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// Update applies changes to a task. Reassignment issues a fresh confirmation
// token for the new assignee; a status change fans out the status-change
// notification and, when the actor is not the assignee, asks the assignee to
// acknowledge it.
func (s *TaskService) Update(ctx context.Context, actor models.UserSnapshot, id string, req dto.UpdateTaskRequest) (*models.Task, error) {
	current, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	changes := make(map[string]interface{})
	if req.Title != nil {
		changes["title"] = *req.Title
	}
	if req.Description != nil {
		changes["description"] = *req.Description
	}
	if req.Priority != nil {
		priority, err := parsePriority(*req.Priority)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		changes["priority"] = priority
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be YYYY-MM-DD")
		}
		changes["due_date"] = due
	}
	if req.StageID != nil {
		changes["stage_id"] = *req.StageID
	}

	var newStatus *models.TaskStatus
	if req.Status != nil {
		status, err := models.ParseTaskStatus(*req.Status)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if status != current.Status {
			newStatus = &status
			changes["status"] = status
			if status == models.TaskStatusCompleted {
				changes["completed_at"] = time.Now().UTC()
			}
		}
	}

	reassigned := req.AssignedToID != nil && !sameAssignee(current.AssignedToID, req.AssignedToID)
	if reassigned {
		changes["assigned_to_id"] = *req.AssignedToID
	}

	if len(changes) == 0 {
		return current, nil
	}
	if err := s.tasks.Update(ctx, id, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionUpdate, id, fmt.Sprintf("Task updated: %s", current.Title))

	updated, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload task")
	}

	project, _ := s.projects.GetByID(ctx, updated.ProjectID)

	switch {
	case reassigned:
		s.notifyAssignment(ctx, actor, updated, project, models.ActionTaskAssigned)
	case newStatus != nil && *newStatus == models.TaskStatusCompleted:
		s.dispatch(ctx, actor, updated, models.ActionTaskCompleted, models.CompletionMeta{
			ProjectName: projectTitle(project),
			Comment:     req.Comment,
		})
	case newStatus != nil:
		s.notifyStatusChange(ctx, actor, updated, project, string(current.Status), req.Comment)
	default:
		s.dispatch(ctx, actor, updated, models.ActionTaskUpdated, models.UpdateMeta{
			ProjectName: projectTitle(project),
			Changes:     describeChanges(changes),
		})
	}
	return updated, nil
}

// Reject lets the assignee decline a task. The task status is left unchanged;
// the project's superiors are notified with the mandatory reason.
func (s *TaskService) Reject(ctx context.Context, actor models.UserSnapshot, id string, req dto.RejectTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.AssignedToID == nil || *task.AssignedToID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assignee can decline a task")
	}

	s.recordActivity(ctx, actor.ID, models.ActivityActionReject, task.ID,
		fmt.Sprintf("Task declined: %s - Reason: %s", task.Title, req.Reason))

	project, _ := s.projects.GetByID(ctx, task.ProjectID)
	s.dispatch(ctx, actor, task, models.ActionTaskRejected, models.StatusChangeMeta{
		ProjectName: projectTitle(project),
		ProjectID:   task.ProjectID,
		Comment:     req.Reason,
	})
	return task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, actor models.UserSnapshot, id string) error {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	s.recordActivity(ctx, actor.ID, models.ActivityActionDelete, id, fmt.Sprintf("Task deleted: %s", task.Title))
	return nil
}

// notifyAssignment issues a confirmation token for the assignee and fans out
// the assignment notification. Token issuance failing yields "" and the email
// simply goes out without a confirmation link.
func (s *TaskService) notifyAssignment(ctx context.Context, actor models.UserSnapshot, task *models.Task, project *models.Project, action models.ActionType) {
	if task.AssignedToID == nil || *task.AssignedToID == "" {
		return
	}
	assignee, err := s.users.FindByID(ctx, *task.AssignedToID)
	if err != nil {
		s.logger.Warn("assignee lookup failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	token := ""
	if s.confirmations != nil {
		token = s.confirmations.Issue(ctx, models.ConfirmTaskAssignment, assignee.ID, "task", task.ID, models.TokenMetadata{
			TaskTitle:   task.Title,
			ProjectName: projectTitle(project),
		})
	}

	s.dispatchWithAffected(ctx, actor, task, action, []models.UserSnapshot{assignee.Snapshot()}, models.AssignmentMeta{
		ProjectName:       projectTitle(project),
		AssigneeName:      assignee.Name,
		ConfirmationToken: token,
	})
}

// notifyStatusChange fans out a status-change notification. When someone
// other than the assignee changed the status, the assignee gets a
// confirmation link to acknowledge the change.
func (s *TaskService) notifyStatusChange(ctx context.Context, actor models.UserSnapshot, task *models.Task, project *models.Project, oldStatus, comment string) {
	var affected []models.UserSnapshot
	token := ""
	if task.AssignedToID != nil && *task.AssignedToID != "" {
		if assignee, err := s.users.FindByID(ctx, *task.AssignedToID); err == nil {
			affected = append(affected, assignee.Snapshot())
			if assignee.ID != actor.ID && s.confirmations != nil {
				token = s.confirmations.Issue(ctx, models.ConfirmTaskStatusChange, assignee.ID, "task", task.ID, models.TokenMetadata{
					TaskTitle:   task.Title,
					ProjectName: projectTitle(project),
					OldStatus:   oldStatus,
					NewStatus:   string(task.Status),
				})
			}
		}
	}

	s.dispatchWithAffected(ctx, actor, task, models.ActionTaskStatusChanged, affected, models.StatusChangeMeta{
		ProjectName:       projectTitle(project),
		ProjectID:         task.ProjectID,
		OldStatus:         oldStatus,
		NewStatus:         string(task.Status),
		Comment:           comment,
		ConfirmationToken: token,
	})
}

func (s *TaskService) dispatch(ctx context.Context, actor models.UserSnapshot, task *models.Task, action models.ActionType, meta models.ActionMeta) {
	s.dispatchWithAffected(ctx, actor, task, action, nil, meta)
}

func (s *TaskService) dispatchWithAffected(ctx context.Context, actor models.UserSnapshot, task *models.Task, action models.ActionType, affected []models.UserSnapshot, meta models.ActionMeta) {
	if s.notifications == nil {
		return
	}
	s.notifications.Dispatch(ctx, models.ActionContext{
		ActionType:  action,
		PerformedBy: actor,
		Entity: models.EntitySnapshot{
			Kind:        models.EntityTask,
			ID:          task.ID,
			Title:       task.Title,
			Description: derefString(task.Description),
			Status:      string(task.Status),
			Priority:    string(task.Priority),
			DueDate:     task.DueDate,
		},
		AffectedUsers: affected,
		ProjectID:     task.ProjectID,
		Meta:          meta,
	})
}

func (s *TaskService) recordActivity(ctx context.Context, userID, action, taskID, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		EntityType: "task",
		EntityID:   taskID,
		Details:    details,
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Error("task audit entry failed", zap.Error(err))
	}
}

func sameAssignee(current, next *string) bool {
	if current == nil || *current == "" {
		return next == nil || *next == ""
	}
	return next != nil && *next == *current
}

func projectTitle(project *models.Project) string {
	if project == nil {
		return ""
	}
	return project.Title
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func describeChanges(changes map[string]interface{}) string {
	fields := make([]string, 0, len(changes))
	for column := range changes {
		fields = append(fields, column)
	}
	sort.Strings(fields)
	return fmt.Sprintf("Updated fields: %s", strings.Join(fields, ", "))
}

func parsePriority(raw string) (models.TaskPriority, error) {
	switch p := models.TaskPriority(strings.ToUpper(raw)); p {
	case models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("unrecognized task priority %q", raw)
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
