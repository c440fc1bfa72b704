// Package badges evaluates badge conditions against the ledger and awards
// badges with their point bonuses. It subscribes to points-changed events
// instead of being called by the points service directly.
package badges

import (
	"context"
	"fmt"

	"github.com/givehub/discovery-engine/internal/models"
)

// evaluateCondition checks one condition against the user's ledger history.
// Reserved condition types (streak, milestone, custom) always evaluate
// false; they parse and persist so catalogs can ship them ahead of their
// evaluators, but they never award.
func (s *Service) evaluateCondition(ctx context.Context, userID uint, condition models.BadgeCondition) (bool, error) {
	if !condition.Type.Implemented() {
		return false, nil
	}

	switch condition.Type {
	case models.ConditionPoints:
		total, err := s.txRepo.SumPointsByUser(userID, nil)
		if err != nil {
			return false, fmt.Errorf("points condition: %w", err)
		}
		return total >= condition.Target, nil
	case models.ConditionCount:
		count, err := s.txRepo.CountByUserAction(userID, condition.Action)
		if err != nil {
			return false, fmt.Errorf("count condition: %w", err)
		}
		return count >= int64(condition.Target), nil
	default:
		return false, nil
	}
}

// evaluateBadge reports whether all of a badge's conditions hold. A badge
// with no conditions is never earned.
func (s *Service) evaluateBadge(ctx context.Context, userID uint, badge *models.Badge) (bool, error) {
	conditions, err := badge.ParseConditions()
	if err != nil {
		return false, fmt.Errorf("badge %s has a malformed condition list: %w", badge.Slug, err)
	}
	if len(conditions) == 0 {
		return false, nil
	}
	for _, condition := range conditions {
		ok, err := s.evaluateCondition(ctx, userID, condition)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
