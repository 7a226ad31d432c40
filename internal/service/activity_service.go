package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type activityRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, error)
}

// ActivityService exposes the append-only audit trail.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
}

// NewActivityService constructs the service.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// List returns audit entries, newest first. Non-admin callers only see their
// own activity.
func (s *ActivityService) List(ctx context.Context, caller models.UserSnapshot, filter models.ActivityFilter) ([]models.ActivityLog, error) {
	if caller.Role != models.RoleAdmin {
		filter.UserID = caller.ID
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	return entries, nil
}
