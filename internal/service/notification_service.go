package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/models"
	"github.com/kerane/projectdesk-api/internal/templates"
	"github.com/kerane/projectdesk-api/pkg/mailer"
)

type adminLister interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type managerResolver interface {
	GetManager(ctx context.Context, projectID string) (*models.User, error)
}

type activityWriter interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
}

// NotificationService resolves recipients, renders content and delivers email
// notifications for committed business actions. Dispatch is best-effort:
// nothing it does can fail the mutation that triggered it.
type NotificationService struct {
	users       adminLister
	projects    managerResolver
	activity    activityWriter
	mail        mailer.Mailer
	frontendURL string
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(users adminLister, projects managerResolver, activity activityWriter, mail mailer.Mailer, frontendURL string, sendTimeout time.Duration, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &NotificationService{
		users:       users,
		projects:    projects,
		activity:    activity,
		mail:        mail,
		frontendURL: frontendURL,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// ResolveRecipients computes the deduplicated recipient set for an action.
// The actor's role drives the fan-out:
//
//	EMPLOYEE        actor + project manager + all admins
//	PROJECT_MANAGER actor + all admins + affected EMPLOYEE users
//	ADMIN           actor + all affected users + manager when any are affected
//
// Dedup is by case-sensitive email. Lookups that fail narrow the set instead
// of failing the dispatch; notification delivery is best-effort.
func (s *NotificationService) ResolveRecipients(ctx context.Context, action models.ActionContext) []models.UserSnapshot {
	seen := make(map[string]struct{})
	recipients := make([]models.UserSnapshot, 0, len(action.AffectedUsers)+4)
	add := func(user models.UserSnapshot) {
		if user.Email == "" {
			return
		}
		if _, ok := seen[user.Email]; ok {
			return
		}
		seen[user.Email] = struct{}{}
		recipients = append(recipients, user)
	}

	add(action.PerformedBy)

	switch action.PerformedBy.Role {
	case models.RoleEmployee:
		if manager := s.lookupManager(ctx, action.ProjectID); manager != nil {
			add(manager.Snapshot())
		}
		for _, admin := range s.lookupAdmins(ctx) {
			add(admin.Snapshot())
		}
	case models.RoleProjectManager:
		for _, admin := range s.lookupAdmins(ctx) {
			add(admin.Snapshot())
		}
		for _, affected := range action.AffectedUsers {
			if affected.Role == models.RoleEmployee {
				add(affected)
			}
		}
	case models.RoleAdmin:
		for _, affected := range action.AffectedUsers {
			add(affected)
		}
		if len(action.AffectedUsers) > 0 {
			if manager := s.lookupManager(ctx, action.ProjectID); manager != nil {
				add(manager.Snapshot())
			}
		}
	}
	return recipients
}

func (s *NotificationService) lookupManager(ctx context.Context, projectID string) *models.User {
	if projectID == "" || s.projects == nil {
		return nil
	}
	manager, err := s.projects.GetManager(ctx, projectID)
	if err != nil {
		// treated as "no manager": delivery must not fail closed
		s.logger.Warn("manager lookup failed during dispatch", zap.String("project_id", projectID), zap.Error(err))
		return nil
	}
	return manager
}

func (s *NotificationService) lookupAdmins(ctx context.Context) []models.User {
	if s.users == nil {
		return nil
	}
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		s.logger.Warn("admin lookup failed during dispatch", zap.Error(err))
		return nil
	}
	return admins
}

// BuildContent maps an action to its email subject and body. Returns ok=false
// when the action type has no registered template; callers skip delivery.
func (s *NotificationService) BuildContent(action models.ActionContext) (subject, html string, ok bool) {
	var err error
	switch action.ActionType {
	case models.ActionTaskCreated, models.ActionTaskAssigned:
		meta, _ := action.Meta.(models.AssignmentMeta)
		subject = fmt.Sprintf("New task assigned: %s", action.Entity.Title)
		html, err = templates.TaskAssigned(templates.TaskAssignedData{
			AssigneeName:    fallback(meta.AssigneeName, "there"),
			TaskTitle:       action.Entity.Title,
			Description:     action.Entity.Description,
			ProjectName:     fallback(meta.ProjectName, "the project"),
			Priority:        fallback(action.Entity.Priority, string(models.TaskPriorityMedium)),
			DueDate:         formatDate(action.Entity.DueDate),
			ConfirmationURL: s.confirmationURL(meta.ConfirmationToken),
		})
	case models.ActionTaskStatusChanged:
		meta, _ := action.Meta.(models.StatusChangeMeta)
		subject = fmt.Sprintf("Status change: %s", action.Entity.Title)
		html, err = templates.TaskStatusChanged(templates.TaskStatusChangedData{
			EmployeeName:    action.PerformedBy.Name,
			TaskTitle:       action.Entity.Title,
			ProjectName:     fallback(meta.ProjectName, "the project"),
			OldStatus:       statusLabel(meta.OldStatus),
			NewStatus:       statusLabel(action.Entity.Status),
			Comment:         meta.Comment,
			ConfirmationURL: s.confirmationURL(meta.ConfirmationToken),
		})
	case models.ActionTaskCompleted:
		meta, _ := action.Meta.(models.CompletionMeta)
		subject = fmt.Sprintf("Task completed: %s", action.Entity.Title)
		html, err = templates.TaskCompleted(templates.TaskCompletedData{
			EmployeeName: action.PerformedBy.Name,
			TaskTitle:    action.Entity.Title,
			ProjectName:  fallback(meta.ProjectName, "the project"),
			Comment:      meta.Comment,
		})
	case models.ActionTaskUpdated:
		meta, _ := action.Meta.(models.UpdateMeta)
		subject = fmt.Sprintf("Task updated: %s", action.Entity.Title)
		html, err = templates.TaskUpdated(templates.TaskUpdatedData{
			TaskTitle: action.Entity.Title,
			UpdatedBy: action.PerformedBy.Name,
			Changes:   fallback(meta.Changes, "Details were updated"),
		})
	case models.ActionTaskRejected:
		meta, _ := action.Meta.(models.StatusChangeMeta)
		subject = fmt.Sprintf("Task declined: %s", action.Entity.Title)
		html, err = templates.TaskRejected(templates.TaskRejectedData{
			ManagerName:  "there",
			EmployeeName: action.PerformedBy.Name,
			TaskTitle:    action.Entity.Title,
			ProjectName:  fallback(meta.ProjectName, "the project"),
			Reason:       meta.Comment,
		})
	case models.ActionProjectCreated:
		subject = fmt.Sprintf("New project created: %s", action.Entity.Title)
		html, err = templates.ProjectCreated(templates.ProjectCreatedData{
			ProjectName: action.Entity.Title,
			Description: action.Entity.Description,
			CreatedBy:   action.PerformedBy.Name,
			DueDate:     formatDate(action.Entity.DueDate),
		})
	case models.ActionStageCompleted:
		meta, _ := action.Meta.(models.StageCompletionMeta)
		subject = fmt.Sprintf("Stage completed: %s", action.Entity.Title)
		html, err = templates.StageCompleted(templates.StageCompletedData{
			StageName:     action.Entity.Title,
			ProjectName:   fallback(meta.ProjectName, "the project"),
			CompletedBy:   action.PerformedBy.Name,
			NextStageName: meta.NextStageName,
		})
	case models.ActionStageUpdated:
		meta, _ := action.Meta.(models.StatusChangeMeta)
		subject = fmt.Sprintf("Stage updated: %s", action.Entity.Title)
		html, err = templates.StageUpdated(templates.StageUpdatedData{
			EmployeeName:    action.PerformedBy.Name,
			StageName:       action.Entity.Title,
			ProjectName:     fallback(meta.ProjectName, "the project"),
			OldStatus:       statusLabel(meta.OldStatus),
			NewStatus:       statusLabel(action.Entity.Status),
			Comment:         meta.Comment,
			ConfirmationURL: s.confirmationURL(meta.ConfirmationToken),
		})
	default:
		return "", "", false
	}
	if err != nil {
		s.logger.Error("email rendering failed", zap.String("action", string(action.ActionType)), zap.Error(err))
		return "", "", false
	}
	return subject, html, true
}

// Dispatch delivers the notification for one committed action. It never
// returns an error: a failure for one recipient is logged and the remaining
// recipients are still attempted. One audit entry is written per batch.
func (s *NotificationService) Dispatch(ctx context.Context, action models.ActionContext) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notification dispatch panicked", zap.Any("panic", r), zap.String("action", string(action.ActionType)))
		}
	}()

	recipients := s.ResolveRecipients(ctx, action)
	if len(recipients) == 0 {
		s.logger.Debug("no recipients resolved", zap.String("action", string(action.ActionType)))
		return
	}

	subject, html, ok := s.BuildContent(action)
	if !ok {
		s.logger.Warn("no email template registered for action", zap.String("action", string(action.ActionType)))
		return
	}

	delivered := 0
	for _, recipient := range recipients {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		err := s.mail.Send(sendCtx, mailer.Message{
			To:      recipient.Email,
			Subject: subject,
			HTML:    html,
			Metadata: map[string]interface{}{
				"action":      string(action.ActionType),
				"entity_type": string(action.Entity.Kind),
				"entity_id":   action.Entity.ID,
			},
		})
		cancel()
		if err != nil {
			s.logger.Error("notification delivery failed",
				zap.String("recipient", recipient.Email),
				zap.String("action", string(action.ActionType)),
				zap.Error(err))
			continue
		}
		delivered++
	}

	s.audit(ctx, action, len(recipients), delivered)
}

func (s *NotificationService) audit(ctx context.Context, action models.ActionContext, resolved, delivered int) {
	if s.activity == nil {
		return
	}
	userID := action.PerformedBy.ID
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     models.ActivityActionNotify,
		EntityType: string(action.Entity.Kind),
		EntityID:   action.Entity.ID,
		Details:    fmt.Sprintf("%s: notified %d of %d recipients", action.ActionType, delivered, resolved),
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Error("dispatch audit entry failed", zap.Error(err))
	}
}

func (s *NotificationService) confirmationURL(token string) string {
	if token == "" {
		return ""
	}
	return fmt.Sprintf("%s/confirm-email?token=%s", s.frontendURL, token)
}

// statusLabel maps status codes to display strings; unmapped codes render as
// the raw code.
func statusLabel(code string) string {
	switch code {
	case string(models.TaskStatusTodo):
		return "To do"
	case string(models.TaskStatusInProgress):
		return "In progress"
	case string(models.TaskStatusCompleted):
		return "Completed"
	case string(models.StageStatusPending):
		return "Pending"
	case "":
		return "UNKNOWN"
	}
	return code
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
