package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/dto"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type projectCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type taskCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// DashboardService composes aggregate stats, cached in Redis.
type DashboardService struct {
	projects projectCounter
	tasks    taskCounter
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewDashboardService constructs the service.
func NewDashboardService(projects projectCounter, tasks taskCounter, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{projects: projects, tasks: tasks, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

const dashboardCacheKey = "dash:stats"

// Stats returns aggregate counts and reports whether the cache served them.
func (s *DashboardService) Stats(ctx context.Context) (*dto.DashboardStats, bool, error) {
	if s.cache != nil {
		var cached dto.DashboardStats
		if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	projectCounts, err := s.projects.CountByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count projects")
	}
	taskCounts, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count tasks")
	}

	stats := &dto.DashboardStats{
		ProjectsByStatus: projectCounts,
		TasksByStatus:    taskCounts,
	}
	for _, n := range projectCounts {
		stats.TotalProjects += n
	}
	for _, n := range taskCounts {
		stats.TotalTasks += n
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, stats, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return stats, false, nil
}

// Invalidate drops the cached stats. Called after mutations that change the
// counts.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
