// Package trending computes decayed popularity scores for needs, users and
// tags over a lookback window and produces ranked trending lists.
package trending

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/givehub/discovery-engine/internal/cache"
	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/repository"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// ItemRepository interface for trending candidates.
type ItemRepository interface {
	FindNeedsActiveSince(since time.Time) ([]models.Need, error)
	FindTagsByNames(names []string) ([]models.Tag, error)
}

// TransactionRepository interface for windowed user activity.
type TransactionRepository interface {
	SumPointsGroupedByUser(since time.Time) ([]repository.UserPointSum, error)
	CountActionsGroupedByUser(action models.Action, since time.Time) ([]repository.UserActionCount, error)
}

// UserRepository interface for user lookups.
type UserRepository interface {
	GetByIDs(ids []uint) ([]models.User, error)
}

// TrendingNeed is a need with its computed trending score and rank.
type TrendingNeed struct {
	Need  models.Need `json:"need"`
	Score Score       `json:"score"`
	Rank  int         `json:"rank"`
}

// TrendingUser is a user with their computed trending score and rank.
type TrendingUser struct {
	UserID        uint    `json:"user_id"`
	Username      string  `json:"username,omitempty"`
	PointsEarned  int     `json:"points_earned"`
	NeedsCreated  int     `json:"needs_created"`
	Contributions int     `json:"contributions"`
	TotalScore    float64 `json:"total_score"`
	Rank          int     `json:"rank"`
}

// TrendingTag is a tag with its windowed usage and growth.
type TrendingTag struct {
	Name         string  `json:"name"`
	UsageCount   int     `json:"usage_count"`
	TotalUsage   int     `json:"total_usage"`
	GrowthRate   float64 `json:"growth_rate"`
	DisplayScore float64 `json:"display_score"`
	Rank         int     `json:"rank"`
}

// Service computes trending lists. Results are cached in Redis for a short
// TTL; a cache failure falls through to a fresh computation.
type Service struct {
	itemRepo ItemRepository
	txRepo   TransactionRepository
	userRepo UserRepository
	cache    cache.Cache
	previous PreviousPeriodSource
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewService creates a new trending service. A nil previous source falls
// back to the zero baseline.
func NewService(
	itemRepo ItemRepository,
	txRepo TransactionRepository,
	userRepo UserRepository,
	c cache.Cache,
	previous PreviousPeriodSource,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	if previous == nil {
		previous = ZeroBaseline{}
	}
	return &Service{
		itemRepo: itemRepo,
		txRepo:   txRepo,
		userRepo: userRepo,
		cache:    c,
		previous: previous,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// GetTrendingNeeds returns the top trending needs for a period, ranked 1..N.
func (s *Service) GetTrendingNeeds(ctx context.Context, period Period, limit int) ([]TrendingNeed, error) {
	cacheKey := fmt.Sprintf("trending:needs:%s:%d", period, limit)
	var cached []TrendingNeed
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	start := time.Now()
	window := period.Window()
	since := time.Now().Add(-window)

	needs, err := s.itemRepo.FindNeedsActiveSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to load trending candidates: %w", err)
	}
	prommetrics.TrendingCandidates.WithLabelValues("needs").Set(float64(len(needs)))

	trending := make([]TrendingNeed, 0, len(needs))
	for _, need := range needs {
		prevViews, prevInteractions, err := s.previous.NeedCounts(ctx, need.ID, window)
		if err != nil {
			s.log.Warn().Err(err).Uint("need_id", need.ID).Msg("Previous-period lookup failed, using zero baseline")
			prevViews, prevInteractions = 0, 0
		}
		score := ScoreNeed(&need, prevViews, prevInteractions, window, time.Now())
		trending = append(trending, TrendingNeed{Need: need, Score: score})
	}

	sort.SliceStable(trending, func(i, j int) bool {
		return trending[i].Score.TotalScore > trending[j].Score.TotalScore
	})
	if limit > 0 && len(trending) > limit {
		trending = trending[:limit]
	}
	for i := range trending {
		trending[i].Rank = i + 1
	}

	prommetrics.ScoringDurationSeconds.WithLabelValues("trending_needs").Observe(time.Since(start).Seconds())
	s.writeCache(ctx, cacheKey, trending)
	return trending, nil
}

// GetTrendingUsers returns the top trending users for a period, ranked 1..N.
// Per-user momentum and recency are fixed constants; only windowed points
// and engagement vary per user.
func (s *Service) GetTrendingUsers(ctx context.Context, period Period, limit int) ([]TrendingUser, error) {
	cacheKey := fmt.Sprintf("trending:users:%s:%d", period, limit)
	var cached []TrendingUser
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	start := time.Now()
	since := time.Now().Add(-period.Window())

	sums, err := s.txRepo.SumPointsGroupedByUser(since)
	if err != nil {
		return nil, fmt.Errorf("failed to sum windowed points: %w", err)
	}
	created, err := s.txRepo.CountActionsGroupedByUser(models.ActionNeedCreated, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count windowed creations: %w", err)
	}
	supported, err := s.txRepo.CountActionsGroupedByUser(models.ActionNeedSupported, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count windowed contributions: %w", err)
	}
	prommetrics.TrendingCandidates.WithLabelValues("users").Set(float64(len(sums)))

	createdByUser := make(map[uint]int, len(created))
	for _, c := range created {
		createdByUser[c.UserID] = c.Count
	}
	supportedByUser := make(map[uint]int, len(supported))
	for _, c := range supported {
		supportedByUser[c.UserID] = c.Count
	}

	trending := make([]TrendingUser, 0, len(sums))
	for _, sum := range sums {
		user := TrendingUser{
			UserID:        sum.UserID,
			PointsEarned:  sum.Points,
			NeedsCreated:  createdByUser[sum.UserID],
			Contributions: supportedByUser[sum.UserID],
		}
		user.TotalScore = ScoreUser(user.PointsEarned, user.NeedsCreated, user.Contributions)
		trending = append(trending, user)
	}

	sort.SliceStable(trending, func(i, j int) bool {
		return trending[i].TotalScore > trending[j].TotalScore
	})
	if limit > 0 && len(trending) > limit {
		trending = trending[:limit]
	}
	s.fillUsernames(trending)
	for i := range trending {
		trending[i].Rank = i + 1
	}

	prommetrics.ScoringDurationSeconds.WithLabelValues("trending_users").Observe(time.Since(start).Seconds())
	s.writeCache(ctx, cacheKey, trending)
	return trending, nil
}

// GetTrendingTags returns the top trending tags for a period, ranked 1..N.
// Usage is counted over needs active inside the window; tags never seen in
// the previous window score as 100% growth.
func (s *Service) GetTrendingTags(ctx context.Context, period Period, limit int) ([]TrendingTag, error) {
	cacheKey := fmt.Sprintf("trending:tags:%s:%d", period, limit)
	var cached []TrendingTag
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	start := time.Now()
	window := period.Window()
	since := time.Now().Add(-window)

	needs, err := s.itemRepo.FindNeedsActiveSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag candidates: %w", err)
	}

	usage := make(map[string]int)
	for _, need := range needs {
		for _, tag := range need.Tags {
			name := strings.ToLower(strings.TrimSpace(tag))
			if name == "" {
				continue
			}
			usage[name]++
		}
	}
	prommetrics.TrendingCandidates.WithLabelValues("tags").Set(float64(len(usage)))

	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)

	totalUsage := make(map[string]int)
	if rows, err := s.itemRepo.FindTagsByNames(names); err != nil {
		s.log.Warn().Err(err).Msg("Failed to resolve cumulative tag usage")
	} else {
		for _, row := range rows {
			totalUsage[row.Name] = row.UsageCount
		}
	}

	trending := make([]TrendingTag, 0, len(names))
	for _, name := range names {
		prev, err := s.previous.TagCount(ctx, name, window)
		if err != nil {
			s.log.Warn().Err(err).Str("tag", name).Msg("Previous-period lookup failed, using zero baseline")
			prev = 0
		}
		growth := GrowthRate(usage[name], prev)
		trending = append(trending, TrendingTag{
			Name:         name,
			UsageCount:   usage[name],
			TotalUsage:   totalUsage[name],
			GrowthRate:   growth,
			DisplayScore: float64(usage[name]) * (1 + growth/100),
		})
	}

	sort.SliceStable(trending, func(i, j int) bool {
		return trending[i].DisplayScore > trending[j].DisplayScore
	})
	if limit > 0 && len(trending) > limit {
		trending = trending[:limit]
	}
	for i := range trending {
		trending[i].Rank = i + 1
	}

	prommetrics.ScoringDurationSeconds.WithLabelValues("trending_tags").Observe(time.Since(start).Seconds())
	s.writeCache(ctx, cacheKey, trending)
	return trending, nil
}

// fillUsernames resolves usernames for trending users in one batch.
func (s *Service) fillUsernames(users []TrendingUser) {
	if len(users) == 0 {
		return
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	rows, err := s.userRepo.GetByIDs(ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to resolve trending usernames")
		return
	}
	names := make(map[uint]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Username
	}
	for i := range users {
		users[i].Username = names[users[i].UserID]
	}
}

// readCache loads a cached result into dest. Returns false on miss or error.
func (s *Service) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil || s.cacheTTL <= 0 {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Trending cache read failed")
		return false
	}
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Trending cache entry corrupt")
		return false
	}
	return true
}

// writeCache stores a computed result. Failures are logged, never surfaced.
func (s *Service) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to encode trending cache entry")
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Trending cache write failed")
	}
}
