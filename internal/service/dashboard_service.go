package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/repository"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type dashboardReader interface {
	Summary(ctx context.Context, date time.Time, cycleSessions int) (*models.DashboardSummary, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardConfig tunes the dashboard read path.
type DashboardConfig struct {
	Zone          *time.Location
	CacheTTL      time.Duration
	CycleSessions int
}

// DashboardService serves the cached operational snapshot. The cache entry is
// dropped by every reconciliation write, so a fresh aggregate follows each
// mark or payment within one request.
type DashboardService struct {
	repo   dashboardReader
	cache  dashboardCache
	clock  billing.Clock
	logger *zap.Logger
	config DashboardConfig
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(repo dashboardReader, cache dashboardCache, clock billing.Clock, logger *zap.Logger, config DashboardConfig) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Zone == nil {
		config.Zone = billing.DefaultZone
	}
	if clock == nil {
		clock = billing.ZoneClock(config.Zone)
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.CycleSessions <= 0 {
		config.CycleSessions = billing.DefaultCycleSessions
	}
	return &DashboardService{repo: repo, cache: cache, clock: clock, logger: logger, config: config}
}

// Summary returns today's aggregate, cached per civil date.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, error) {
	date := billing.CivilDate(s.clock(), s.config.Zone)
	key := repository.DashboardCacheKey(date.Format("2006-01-02"))

	var cached models.DashboardSummary
	switch err := s.cache.Get(ctx, key, &cached); {
	case err == nil:
		return &cached, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
	default:
		s.logger.Warn("dashboard cache read failed", zap.Error(err))
	}

	summary, err := s.repo.Summary(ctx, date, s.config.CycleSessions)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard summary")
	}

	if err := s.cache.Set(ctx, key, summary, s.config.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return summary, nil
}
