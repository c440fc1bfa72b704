// Package leaderboard provides leaderboard and ranking services over the
// point ledger and the per-user aggregates.
package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/repository"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// AggregateRepository interface for aggregate reads.
type AggregateRepository interface {
	Get(userID uint) (*models.UserAggregate, error)
	ListTop(column string, limit int) ([]models.UserAggregate, error)
	CountWithMetricGreaterThan(column string, threshold int) (int64, error)
	CountAll() (int64, error)
}

// TransactionRepository interface for windowed ledger sums.
type TransactionRepository interface {
	SumPointsGroupedByUser(since time.Time) ([]repository.UserPointSum, error)
	SumPointsByUser(userID uint, since *time.Time) (int, error)
}

// UserRepository interface for user lookups.
type UserRepository interface {
	GetByIDs(ids []uint) ([]models.User, error)
}

// BadgeRepository interface for badge lookups on user stats.
type BadgeRepository interface {
	GetUserBadges(userID uint) ([]models.UserBadge, error)
}

// Entry represents a single entry in a leaderboard. Rank is positional
// within one (category, period) result set and has no meaning outside it.
type Entry struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username,omitempty"`
	Rank     int    `json:"rank"`
	Score    int    `json:"score"`
	Level    int    `json:"level,omitempty"`
}

// Result is a leaderboard slice plus context for the requesting user.
type Result struct {
	Category    Category  `json:"category"`
	Period      Period    `json:"period"`
	Entries     []Entry   `json:"entries"`
	TotalUsers  int64     `json:"total_users"`
	UserEntry   *Entry    `json:"user_entry,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Service answers top-N and rank-of-user queries. All operations are pure
// reads over the aggregate store and the ledger.
type Service struct {
	aggRepo   AggregateRepository
	txRepo    TransactionRepository
	userRepo  UserRepository
	badgeRepo BadgeRepository
	log       *logger.Logger
}

// NewService creates a new leaderboard service.
func NewService(
	aggRepo AggregateRepository,
	txRepo TransactionRepository,
	userRepo UserRepository,
	badgeRepo BadgeRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		aggRepo:   aggRepo,
		txRepo:    txRepo,
		userRepo:  userRepo,
		badgeRepo: badgeRepo,
		log:       log,
	}
}

// GetLeaderboard returns the top entries for a category and period. When
// requestingUserID is nonzero the result carries that user's own entry even
// if it falls outside the slice.
//
// All-time leaderboards rank by the category's aggregate column. Windowed
// periods rank by points earned inside the window regardless of category;
// existing clients depend on that behavior, so it is kept as is.
func (s *Service) GetLeaderboard(ctx context.Context, category Category, period Period, limit int, requestingUserID uint) (*Result, error) {
	prommetrics.LeaderboardRequestsTotal.WithLabelValues(string(category), string(period)).Inc()

	var (
		entries    []Entry
		totalUsers int64
		err        error
	)

	if window, windowed := period.Window(); windowed {
		entries, totalUsers, err = s.windowedEntries(window, limit)
	} else {
		entries, totalUsers, err = s.allTimeEntries(category, limit)
	}
	if err != nil {
		return nil, err
	}

	s.fillUsernames(entries)

	result := &Result{
		Category:    category,
		Period:      period,
		Entries:     entries,
		TotalUsers:  totalUsers,
		LastUpdated: time.Now().UTC(),
	}

	if requestingUserID != 0 {
		userEntry, err := s.GetUserRank(ctx, requestingUserID, category, period)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", requestingUserID).Msg("Failed to resolve requesting user rank")
		} else {
			result.UserEntry = userEntry
		}
	}

	return result, nil
}

// allTimeEntries builds entries straight from the aggregate store, sorted
// descending by the category column with storage-order tie-breaks.
func (s *Service) allTimeEntries(category Category, limit int) ([]Entry, int64, error) {
	aggs, err := s.aggRepo.ListTop(category.Column(), limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list aggregates: %w", err)
	}

	totalUsers, err := s.aggRepo.CountAll()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	entries := make([]Entry, 0, len(aggs))
	for i, agg := range aggs {
		entries = append(entries, Entry{
			UserID: agg.UserID,
			Rank:   i + 1,
			Score:  category.Score(&agg),
			Level:  agg.CurrentLevel,
		})
	}
	return entries, totalUsers, nil
}

// windowedEntries builds entries from per-user point sums inside the window.
func (s *Service) windowedEntries(window time.Duration, limit int) ([]Entry, int64, error) {
	since := time.Now().Add(-window)
	sums, err := s.txRepo.SumPointsGroupedByUser(since)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sum windowed points: %w", err)
	}

	totalUsers := int64(len(sums))
	if limit > 0 && len(sums) > limit {
		sums = sums[:limit]
	}

	entries := make([]Entry, 0, len(sums))
	for i, sum := range sums {
		entries = append(entries, Entry{
			UserID: sum.UserID,
			Rank:   i + 1,
			Score:  sum.Points,
		})
	}
	return entries, totalUsers, nil
}

// fillUsernames resolves usernames for the entries in one batch. A missing
// user keeps an empty username rather than dropping the entry.
func (s *Service) fillUsernames(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]uint, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	users, err := s.userRepo.GetByIDs(ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to resolve leaderboard usernames")
		return
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	for i := range entries {
		entries[i].Username = names[entries[i].UserID]
	}
}

// GetUserRank returns a user's entry for a category and period. A nil entry
// means the user has no rank in that result set: no aggregate row for
// all-time, or no transactions inside the window. That is distinct from a
// zero score.
func (s *Service) GetUserRank(ctx context.Context, userID uint, category Category, period Period) (*Entry, error) {
	if window, windowed := period.Window(); windowed {
		return s.windowedRank(userID, window)
	}

	agg, err := s.aggRepo.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	if agg == nil {
		return nil, nil
	}

	score := category.Score(agg)
	greater, err := s.aggRepo.CountWithMetricGreaterThan(category.Column(), score)
	if err != nil {
		return nil, fmt.Errorf("failed to count higher-ranked users: %w", err)
	}

	return &Entry{
		UserID: userID,
		Rank:   int(greater) + 1,
		Score:  score,
		Level:  agg.CurrentLevel,
	}, nil
}

// windowedRank resolves a user's rank from the windowed point sums.
func (s *Service) windowedRank(userID uint, window time.Duration) (*Entry, error) {
	since := time.Now().Add(-window)
	sums, err := s.txRepo.SumPointsGroupedByUser(since)
	if err != nil {
		return nil, fmt.Errorf("failed to sum windowed points: %w", err)
	}

	var (
		score   int
		found   bool
		greater int
	)
	for _, sum := range sums {
		if sum.UserID == userID {
			score = sum.Points
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}
	for _, sum := range sums {
		if sum.Points > score {
			greater++
		}
	}

	return &Entry{
		UserID: userID,
		Rank:   greater + 1,
		Score:  score,
	}, nil
}

// GetNearbyUsers returns the entries whose rank lies within rng positions of
// the user's own rank, clamped at rank 1. An unranked user yields an empty
// slice.
func (s *Service) GetNearbyUsers(ctx context.Context, userID uint, category Category, period Period, rng int) ([]Entry, error) {
	userEntry, err := s.GetUserRank(ctx, userID, category, period)
	if err != nil {
		return nil, err
	}
	if userEntry == nil {
		return []Entry{}, nil
	}

	lower := userEntry.Rank - rng
	if lower < 1 {
		lower = 1
	}
	upper := userEntry.Rank + rng

	board, err := s.GetLeaderboard(ctx, category, period, upper, 0)
	if err != nil {
		return nil, err
	}

	nearby := make([]Entry, 0, 2*rng+1)
	for _, entry := range board.Entries {
		if entry.Rank >= lower && entry.Rank <= upper {
			nearby = append(nearby, entry)
		}
	}
	return nearby, nil
}

// ActivitySummary is the user's windowed point totals.
type ActivitySummary struct {
	UserID  uint `json:"user_id"`
	Daily   int  `json:"daily"`
	Weekly  int  `json:"weekly"`
	Monthly int  `json:"monthly"`
}

// GetActivitySummary sums a user's points over the daily, weekly and monthly
// windows. The three sums are independent reads, so they fan out
// concurrently and join before returning.
func (s *Service) GetActivitySummary(ctx context.Context, userID uint) (*ActivitySummary, error) {
	summary := &ActivitySummary{UserID: userID}
	targets := []struct {
		window time.Duration
		dest   *int
	}{
		{24 * time.Hour, &summary.Daily},
		{7 * 24 * time.Hour, &summary.Weekly},
		{30 * 24 * time.Hour, &summary.Monthly},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func(i int, window time.Duration, dest *int) {
			defer wg.Done()
			since := time.Now().Add(-window)
			points, err := s.txRepo.SumPointsByUser(userID, &since)
			if err != nil {
				errs[i] = err
				return
			}
			*dest = points
		}(i, target.window, target.dest)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to build activity summary: %w", err)
		}
	}
	return summary, nil
}

// Score extracts the category's metric value from an aggregate.
func (c Category) Score(agg *models.UserAggregate) int {
	switch c {
	case CategoryContributions:
		return agg.TotalContributions
	case CategoryNeedsCreated:
		return agg.NeedsCreated
	case CategoryNeedsSupported:
		return agg.NeedsSupported
	case CategoryBadges:
		return agg.BadgesCount
	case CategoryLevel:
		return agg.CurrentLevel
	case CategoryTasksCompleted:
		return agg.TasksCompleted
	case CategoryTeamsCreated:
		return agg.TeamsCreated
	default:
		return agg.TotalPoints
	}
}
