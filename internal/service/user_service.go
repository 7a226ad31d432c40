package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, id string, changes map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

// UserService manages user accounts.
type UserService struct {
	repo      userRepository
	activity  activityWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userRepository, activity activityWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users with pagination.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update applies admin changes to an account.
func (s *UserService) Update(ctx context.Context, actor models.UserSnapshot, id string, req dto.UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	changes := make(map[string]interface{})
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if existing, err := s.repo.FindByEmail(ctx, email); err == nil && existing.ID != id {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		changes["email"] = email
	}
	if req.Role != nil {
		role := models.UserRole(*req.Role)
		if !models.ValidRole(role) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unrecognized role %q", *req.Role))
		}
		changes["role"] = role
	}
	if req.Active != nil {
		changes["active"] = *req.Active
	}
	if len(changes) == 0 {
		return s.Get(ctx, id)
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	s.recordActivity(ctx, actor.ID, id)
	return s.Get(ctx, id)
}

// Deactivate disables an account without deleting its history.
func (s *UserService) Deactivate(ctx context.Context, actor models.UserSnapshot, id string) error {
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "you cannot deactivate your own account")
	}
	if err := s.repo.Update(ctx, id, map[string]interface{}{"active": false}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	s.recordActivity(ctx, actor.ID, id)
	return nil
}

func (s *UserService) recordActivity(ctx context.Context, actorID, targetID string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     &actorID,
		Action:     models.ActivityActionUpdate,
		EntityType: "user",
		EntityID:   targetID,
		Details:    "User account updated",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record user activity", zap.Error(err))
	}
}
