package points

import (
	"context"
	"fmt"
	"time"

	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
)

// contributionActions are the ledger actions counted into
// total_contributions during a replay.
var contributionActions = []models.Action{
	models.ActionNeedCreated,
	models.ActionNeedSupported,
	models.ActionNeedCompleted,
	models.ActionTaskCompleted,
	models.ActionStoryShared,
}

// RecomputeFromLedger rebuilds a user's aggregate by replaying their full
// ledger history. This is the escape hatch for aggregate divergence.
func (s *Service) RecomputeFromLedger(ctx context.Context, userID uint) (*models.UserAggregate, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	totalPoints, err := s.txRepo.SumPointsByUser(userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to replay ledger sum: %w", err)
	}

	agg := &models.UserAggregate{
		UserID:         userID,
		TotalPoints:    totalPoints,
		CurrentLevel:   s.LevelForPoints(totalPoints),
		LastActivityAt: time.Now(),
	}

	counts := map[models.Action]*int{
		models.ActionNeedCreated:   &agg.NeedsCreated,
		models.ActionNeedSupported: &agg.NeedsSupported,
		models.ActionTaskCompleted: &agg.TasksCompleted,
		models.ActionTeamCreated:   &agg.TeamsCreated,
		models.ActionBadgeEarned:   &agg.BadgesCount,
	}
	for action, dest := range counts {
		count, err := s.txRepo.CountByUserAction(userID, action)
		if err != nil {
			return nil, fmt.Errorf("failed to replay %s count: %w", action, err)
		}
		*dest = int(count)
	}
	for _, action := range contributionActions {
		count, err := s.txRepo.CountByUserAction(userID, action)
		if err != nil {
			return nil, fmt.Errorf("failed to replay %s count: %w", action, err)
		}
		agg.TotalContributions += int(count)
	}

	if err := s.aggRepo.Rebuild(agg); err != nil {
		return nil, err
	}
	s.log.Info().Uint("user_id", userID).Int("total_points", totalPoints).Msg("Aggregate rebuilt from ledger")
	return agg, nil
}

// VerifyAggregate checks replay equivalence: the aggregate total must equal
// the signed ledger sum. A divergence is logged and counted but the stored
// aggregate is left untouched.
func (s *Service) VerifyAggregate(ctx context.Context, userID uint) (bool, error) {
	agg, err := s.aggRepo.Get(userID)
	if err != nil {
		return false, err
	}
	ledgerSum, err := s.txRepo.SumPointsByUser(userID, nil)
	if err != nil {
		return false, err
	}

	aggregateTotal := 0
	if agg != nil {
		aggregateTotal = agg.TotalPoints
	}
	if aggregateTotal == ledgerSum {
		return true, nil
	}

	prommetrics.AggregateDivergenceTotal.Inc()
	s.log.Error().
		Uint("user_id", userID).
		Int("aggregate_total", aggregateTotal).
		Int("ledger_sum", ledgerSum).
		Msg("Aggregate diverges from ledger replay")
	return false, nil
}

// ReconcileAll verifies every user with ledger history and rebuilds the
// diverged aggregates. Returns how many users were checked and repaired.
func (s *Service) ReconcileAll(ctx context.Context) (checked, repaired int, err error) {
	userIDs, err := s.txRepo.ListUserIDs()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list ledger users: %w", err)
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return checked, repaired, ctx.Err()
		}
		checked++
		consistent, err := s.VerifyAggregate(ctx, userID)
		if err != nil {
			s.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to verify aggregate")
			continue
		}
		if consistent {
			continue
		}
		if _, err := s.RecomputeFromLedger(ctx, userID); err != nil {
			s.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to rebuild aggregate")
			continue
		}
		repaired++
	}
	return checked, repaired, nil
}
