package leaderboard

import (
	"context"
	"fmt"

	"github.com/givehub/discovery-engine/internal/models"
)

// UserStats represents comprehensive gamification statistics for a user.
type UserStats struct {
	UserID         uint             `json:"user_id"`
	TotalPoints    int              `json:"total_points"`
	CurrentLevel   int              `json:"current_level"`
	NeedsCreated   int              `json:"needs_created"`
	NeedsSupported int              `json:"needs_supported"`
	TasksCompleted int              `json:"tasks_completed"`
	TeamsCreated   int              `json:"teams_created"`
	Badges         []models.Badge   `json:"badges"`
	GlobalRank     int              `json:"global_rank"`
	Activity       *ActivitySummary `json:"activity,omitempty"`
}

// GetUserStats returns a user's aggregate snapshot, badges, points rank and
// windowed activity. Returns nil when the user has no aggregate.
func (s *Service) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	agg, err := s.aggRepo.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	if agg == nil {
		return nil, nil
	}

	stats := &UserStats{
		UserID:         userID,
		TotalPoints:    agg.TotalPoints,
		CurrentLevel:   agg.CurrentLevel,
		NeedsCreated:   agg.NeedsCreated,
		NeedsSupported: agg.NeedsSupported,
		TasksCompleted: agg.TasksCompleted,
		TeamsCreated:   agg.TeamsCreated,
	}

	userBadges, err := s.badgeRepo.GetUserBadges(userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get user badges")
	} else {
		for _, ub := range userBadges {
			if ub.Badge.ID != 0 {
				stats.Badges = append(stats.Badges, ub.Badge)
			}
		}
	}

	rankEntry, err := s.GetUserRank(ctx, userID, CategoryPoints, PeriodAllTime)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get global rank")
	} else if rankEntry != nil {
		stats.GlobalRank = rankEntry.Rank
	}

	activity, err := s.GetActivitySummary(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get activity summary")
	} else {
		stats.Activity = activity
	}

	return stats, nil
}
