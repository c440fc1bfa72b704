// Package recommend produces ranked, explained recommendations for needs,
// users and teams. Four independent need strategies feed a hybrid merge that
// keeps the highest score per item.
package recommend

import (
	"context"

	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/repository"
	"github.com/givehub/discovery-engine/internal/service/preferences"
	"github.com/givehub/discovery-engine/internal/service/trending"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// DefaultLimit applies when a caller requests zero or negative results.
const DefaultLimit = 10

// ItemRepository interface for candidate lookups.
type ItemRepository interface {
	FindNeedsByIDs(ids []uint) ([]models.Need, error)
	FindOpenNeedsByCategories(categories []string, excludeIDs []uint, limit int) ([]models.Need, error)
	FindPopularNeedsExcluding(excludeIDs []uint, limit int) ([]models.Need, error)
	FindOpenTeams(limit int) ([]models.Team, error)
}

// TransactionRepository interface for interaction-overlap queries.
type TransactionRepository interface {
	ListUsersInteractedWithItems(itemIDs []uint, excludeUserID uint) ([]repository.UserItemOverlap, error)
	CountUsersPerItem(userIDs, excludeItemIDs []uint) ([]repository.ItemSupport, error)
}

// UserRepository interface for follow-graph candidate pools.
type UserRepository interface {
	GetByIDs(ids []uint) ([]models.User, error)
	ListMutualFollowIDs(userID uint) ([]uint, error)
	ListFolloweesOfUsers(userIDs []uint) ([]uint, error)
	CountFollowersAmong(candidateID uint, userIDs []uint) (int64, error)
}

// AggregateRepository interface for candidate activity signals.
type AggregateRepository interface {
	Get(userID uint) (*models.UserAggregate, error)
}

// ProfileBuilder supplies the requesting user's preference profile.
type ProfileBuilder interface {
	BuildProfile(ctx context.Context, userID uint) (*preferences.Profile, error)
}

// TrendingProvider supplies trending needs for the trending strategy.
type TrendingProvider interface {
	GetTrendingNeeds(ctx context.Context, period trending.Period, limit int) ([]trending.TrendingNeed, error)
}

// Service is the recommendation engine. All operations are pure reads; a
// strategy finding no evidence degrades to an empty list, never an error.
type Service struct {
	itemRepo ItemRepository
	txRepo   TransactionRepository
	userRepo UserRepository
	aggRepo  AggregateRepository
	profiles ProfileBuilder
	trending TrendingProvider
	log      *logger.Logger
}

// NewService creates a new recommendation service.
func NewService(
	itemRepo ItemRepository,
	txRepo TransactionRepository,
	userRepo UserRepository,
	aggRepo AggregateRepository,
	profiles ProfileBuilder,
	trendingProvider TrendingProvider,
	log *logger.Logger,
) *Service {
	return &Service{
		itemRepo: itemRepo,
		txRepo:   txRepo,
		userRepo: userRepo,
		aggRepo:  aggRepo,
		profiles: profiles,
		trending: trendingProvider,
		log:      log,
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
