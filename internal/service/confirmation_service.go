package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/models"
	"github.com/kerane/projectdesk-api/internal/templates"
	"github.com/kerane/projectdesk-api/pkg/mailer"
)

type confirmationStore interface {
	Create(ctx context.Context, token *models.ConfirmationToken) error
	GetByToken(ctx context.Context, token string) (*models.ConfirmationToken, error)
	MarkConfirmed(ctx context.Context, token string, now time.Time) (bool, error)
}

type taskStore interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ForceStatus(ctx context.Context, id string, status models.TaskStatus) error
}

type stageStore interface {
	GetByID(ctx context.Context, id string) (*models.Stage, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// ConfirmationService owns the out-of-band confirmation workflow: issuing
// single-use tokens, consuming them atomically, and executing the confirmed
// action.
type ConfirmationService struct {
	store       confirmationStore
	tasks       taskStore
	stages      stageStore
	users       userFinder
	projects    managerResolver
	activity    activityWriter
	mail        mailer.Mailer
	tokenTTL    time.Duration
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewConfirmationService constructs the service.
func NewConfirmationService(store confirmationStore, tasks taskStore, stages stageStore, users userFinder, projects managerResolver, activity activityWriter, mail mailer.Mailer, tokenTTL, sendTimeout time.Duration, logger *zap.Logger) *ConfirmationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &ConfirmationService{
		store:       store,
		tasks:       tasks,
		stages:      stages,
		users:       users,
		projects:    projects,
		activity:    activity,
		mail:        mail,
		tokenTTL:    tokenTTL,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Issue generates a random token and persists it. It returns "" on any
// failure rather than an error: issuance is a secondary effect of an already
// committed mutation and must never abort it.
func (s *ConfirmationService) Issue(ctx context.Context, confirmType models.ConfirmationType, userID, entityType, entityID string, meta models.TokenMetadata) string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		return ""
	}
	token := hex.EncodeToString(raw)

	payload, err := json.Marshal(meta)
	if err != nil {
		s.logger.Error("token metadata marshal failed", zap.Error(err))
		return ""
	}

	record := &models.ConfirmationToken{
		Token:      token,
		Type:       confirmType,
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   payload,
		ExpiresAt:  time.Now().UTC().Add(s.tokenTTL),
	}
	if err := s.store.Create(ctx, record); err != nil {
		s.logger.Error("token persistence failed",
			zap.String("type", string(confirmType)),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return ""
	}
	return token
}

// Consume atomically marks the token used and returns its stored payload.
// Failures are classified: NOT_FOUND, ALREADY_USED, EXPIRED. Under concurrent
// attempts on the same token exactly one caller succeeds; the rest observe
// ALREADY_USED.
func (s *ConfirmationService) Consume(ctx context.Context, token string) (models.ConsumeResult, error) {
	now := time.Now().UTC()
	won, err := s.store.MarkConfirmed(ctx, token, now)
	if err != nil {
		return models.ConsumeResult{}, fmt.Errorf("consume token: %w", err)
	}
	if !won {
		// the conditional update matched nothing: re-read to classify why
		record, err := s.store.GetByToken(ctx, token)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ConsumeResult{Reason: models.ConsumeReasonNotFound}, nil
			}
			return models.ConsumeResult{}, fmt.Errorf("classify token: %w", err)
		}
		if record.Confirmed {
			return models.ConsumeResult{Reason: models.ConsumeReasonAlreadyUsed}, nil
		}
		return models.ConsumeResult{Reason: models.ConsumeReasonExpired}, nil
	}

	record, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return models.ConsumeResult{}, fmt.Errorf("load consumed token: %w", err)
	}
	var meta models.TokenMetadata
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &meta); err != nil {
			s.logger.Warn("stored token metadata unreadable", zap.String("token_id", record.ID), zap.Error(err))
		}
	}
	return models.ConsumeResult{
		Success: true,
		Payload: &models.ConfirmationPayload{
			Type:       record.Type,
			UserID:     record.UserID,
			EntityType: record.EntityType,
			EntityID:   record.EntityID,
			Metadata:   meta,
		},
	}, nil
}

// Execute performs the confirmed action. It must only be called after a
// successful Consume. Returns false when the action could not be carried out.
func (s *ConfirmationService) Execute(ctx context.Context, payload models.ConfirmationPayload) bool {
	switch payload.Type {
	case models.ConfirmTaskAssignment:
		return s.executeTaskAssignment(ctx, payload)
	case models.ConfirmTaskStatusChange:
		return s.executeStatusAcknowledgement(ctx, payload, "task")
	case models.ConfirmStageStatusChange:
		return s.executeStatusAcknowledgement(ctx, payload, "stage")
	case models.ConfirmProjectCreated:
		// reserved type with no executor branch yet
		s.logger.Info("unhandled confirmation type",
			zap.String("type", string(payload.Type)),
			zap.String("entity_id", payload.EntityID))
		return true
	}
	s.logger.Warn("unknown confirmation type", zap.String("type", string(payload.Type)))
	return false
}

// executeTaskAssignment forces the task to IN_PROGRESS. The transition is
// unconditional: whatever state the task drifted into since issuance, a
// confirmed assignment means it is being worked on.
func (s *ConfirmationService) executeTaskAssignment(ctx context.Context, payload models.ConfirmationPayload) bool {
	if err := s.tasks.ForceStatus(ctx, payload.EntityID, models.TaskStatusInProgress); err != nil {
		s.logger.Error("confirmed assignment transition failed",
			zap.String("task_id", payload.EntityID), zap.Error(err))
		return false
	}
	task, err := s.tasks.GetByID(ctx, payload.EntityID)
	if err != nil {
		s.logger.Error("task lookup failed after confirmed transition",
			zap.String("task_id", payload.EntityID), zap.Error(err))
		return false
	}

	userName := s.resolveUserName(ctx, payload.UserID)
	s.recordActivity(ctx, payload.UserID, models.ActivityActionStart, "task", task.ID,
		fmt.Sprintf("Task started after assignment confirmation: %s", task.Title))

	html, err := templates.TaskStarted(templates.TaskStartedData{
		UserName:    userName,
		TaskTitle:   task.Title,
		ProjectName: payload.Metadata.ProjectName,
	})
	if err != nil {
		s.logger.Error("acknowledgement rendering failed", zap.Error(err))
		return true
	}
	s.notifyResponsibles(ctx, task.ProjectID, fmt.Sprintf("Task accepted: %s", task.Title), html)
	return true
}

// executeStatusAcknowledgement records that the recipient has seen a status
// change. The entity is not mutated; the change already happened when the
// token was issued.
func (s *ConfirmationService) executeStatusAcknowledgement(ctx context.Context, payload models.ConfirmationPayload, kind string) bool {
	var name, projectID string
	switch kind {
	case "task":
		task, err := s.tasks.GetByID(ctx, payload.EntityID)
		if err != nil {
			s.logger.Error("task lookup failed during acknowledgement", zap.String("task_id", payload.EntityID), zap.Error(err))
			return false
		}
		name, projectID = task.Title, task.ProjectID
	case "stage":
		stage, err := s.stages.GetByID(ctx, payload.EntityID)
		if err != nil {
			s.logger.Error("stage lookup failed during acknowledgement", zap.String("stage_id", payload.EntityID), zap.Error(err))
			return false
		}
		name, projectID = stage.Name, stage.ProjectID
	}

	oldStatus := payload.Metadata.OldStatus
	if oldStatus == "" {
		oldStatus = "UNKNOWN"
	}
	newStatus := payload.Metadata.NewStatus
	if newStatus == "" {
		newStatus = "UNKNOWN"
	}

	userName := s.resolveUserName(ctx, payload.UserID)
	s.recordActivity(ctx, payload.UserID, models.ActivityActionAcknowledge, kind, payload.EntityID,
		fmt.Sprintf("Status change acknowledged: %s (%s to %s)", name, oldStatus, newStatus))

	html, err := templates.Acknowledgement(templates.AcknowledgementData{
		UserName:    userName,
		EntityLabel: kind,
		EntityName:  name,
		ProjectName: payload.Metadata.ProjectName,
		OldStatus:   statusLabel(oldStatus),
		NewStatus:   statusLabel(newStatus),
	})
	if err != nil {
		s.logger.Error("acknowledgement rendering failed", zap.Error(err))
		return true
	}
	s.notifyResponsibles(ctx, projectID, fmt.Sprintf("Change acknowledged: %s", name), html)
	return true
}

// notifyResponsibles emails the project's manager and every admin,
// deduplicated by email. Delivery failures are logged and swallowed.
func (s *ConfirmationService) notifyResponsibles(ctx context.Context, projectID, subject, html string) {
	seen := make(map[string]struct{})
	recipients := make([]string, 0, 4)
	if projectID != "" && s.projects != nil {
		manager, err := s.projects.GetManager(ctx, projectID)
		if err != nil {
			s.logger.Warn("manager lookup failed during acknowledgement", zap.String("project_id", projectID), zap.Error(err))
		} else if manager != nil && manager.Email != "" {
			seen[manager.Email] = struct{}{}
			recipients = append(recipients, manager.Email)
		}
	}
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		s.logger.Warn("admin lookup failed during acknowledgement", zap.Error(err))
	}
	for _, admin := range admins {
		if _, ok := seen[admin.Email]; ok || admin.Email == "" {
			continue
		}
		seen[admin.Email] = struct{}{}
		recipients = append(recipients, admin.Email)
	}

	for _, to := range recipients {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		err := s.mail.Send(sendCtx, mailer.Message{To: to, Subject: subject, HTML: html})
		cancel()
		if err != nil {
			s.logger.Error("acknowledgement delivery failed", zap.String("recipient", to), zap.Error(err))
		}
	}
}

func (s *ConfirmationService) resolveUserName(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		return "A team member"
	}
	return user.Name
}

func (s *ConfirmationService) recordActivity(ctx context.Context, userID, action, entityType, entityID, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Error("confirmation audit entry failed", zap.Error(err))
	}
}
