// Package points implements the point-award pipeline: ledger append,
// aggregate update, level recomputation and the points-changed event that
// drives badge evaluation.
package points

import (
	"context"
	"fmt"
	"time"

	"github.com/givehub/discovery-engine/internal/config"
	"github.com/givehub/discovery-engine/internal/events"
	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// TransactionRepository interface for ledger writes and replay reads.
type TransactionRepository interface {
	Append(tx *models.PointTransaction) error
	SumPointsByUser(userID uint, since *time.Time) (int, error)
	CountByUserAction(userID uint, action models.Action) (int64, error)
	ListUserIDs() ([]uint, error)
}

// AggregateRepository interface for aggregate writes.
type AggregateRepository interface {
	Get(userID uint) (*models.UserAggregate, error)
	ApplyDelta(userID uint, points int, counters map[string]int) error
	SetLevel(userID uint, level int) error
	Rebuild(agg *models.UserAggregate) error
}

// Publisher emits points-changed events after an award commits.
type Publisher interface {
	PublishPointsChanged(event events.PointsChanged) error
}

// AwardOptions carries the optional parts of an award. Zero Points means
// "use the action's default value".
type AwardOptions struct {
	Points       int
	Description  string
	RelatedModel string
	RelatedID    uint
}

// counterColumns maps each action to the aggregate counters it bumps.
var counterColumns = map[models.Action]map[string]int{
	models.ActionNeedCreated:   {"needs_created": 1, "total_contributions": 1},
	models.ActionNeedSupported: {"needs_supported": 1, "total_contributions": 1},
	models.ActionNeedCompleted: {"total_contributions": 1},
	models.ActionTaskCompleted: {"tasks_completed": 1, "total_contributions": 1},
	models.ActionTeamCreated:   {"teams_created": 1},
	models.ActionStoryShared:   {"total_contributions": 1},
	models.ActionBadgeEarned:   {"badges_count": 1},
}

// Service runs the point-award pipeline. Awards for the same user are
// serialized through striped locks so a level crossing is detected exactly
// once; awards for different users run in parallel.
type Service struct {
	txRepo    TransactionRepository
	aggRepo   AggregateRepository
	publisher Publisher
	leveling  config.LevelingConfig
	locks     userLocks
	log       *logger.Logger
}

// NewService creates a new points service. A nil publisher disables event
// publication, which the badge bonus path relies on.
func NewService(
	txRepo TransactionRepository,
	aggRepo AggregateRepository,
	publisher Publisher,
	leveling config.LevelingConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		txRepo:    txRepo,
		aggRepo:   aggRepo,
		publisher: publisher,
		leveling:  leveling,
		log:       log,
	}
}

// Award appends a ledger row for an action, updates the user's aggregate,
// applies any level-up bonus and publishes a points-changed event.
func (s *Service) Award(ctx context.Context, userID uint, action models.Action, opts AwardOptions) (*models.PointTransaction, error) {
	return s.award(ctx, userID, action, opts, true)
}

// AwardBonus is Award without event publication. The badge evaluator writes
// its bonus transactions through this so a badge award cannot re-trigger the
// handler that is processing the current event.
func (s *Service) AwardBonus(ctx context.Context, userID uint, action models.Action, opts AwardOptions) (*models.PointTransaction, error) {
	return s.award(ctx, userID, action, opts, false)
}

// Penalize appends a compensating negative transaction. The points argument
// is the penalty magnitude.
func (s *Service) Penalize(ctx context.Context, userID uint, points int, description string) (*models.PointTransaction, error) {
	if points < 0 {
		points = -points
	}
	return s.award(ctx, userID, models.ActionPenalty, AwardOptions{
		Points:      -points,
		Description: description,
	}, true)
}

func (s *Service) award(ctx context.Context, userID uint, action models.Action, opts AwardOptions, publish bool) (*models.PointTransaction, error) {
	unlock := s.locks.lock(userID)

	points := opts.Points
	if points == 0 {
		points = action.DefaultPoints()
	}

	tx := &models.PointTransaction{
		UserID:       userID,
		Action:       action,
		Points:       points,
		Description:  opts.Description,
		RelatedModel: opts.RelatedModel,
		RelatedID:    opts.RelatedID,
	}
	if err := s.txRepo.Append(tx); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to append ledger row: %w", err)
	}
	if err := s.aggRepo.ApplyDelta(userID, points, counterColumns[action]); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to update aggregate: %w", err)
	}
	prommetrics.RecordPointsAwarded(string(action), points)

	totalPoints, err := s.settleLevel(ctx, userID)
	unlock()
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Uint("user_id", userID).
		Str("action", string(action)).
		Int("points", points).
		Int("total_points", totalPoints).
		Msg("Points awarded")

	if publish && s.publisher != nil {
		event := events.PointsChanged{
			UserID:      userID,
			Action:      action,
			Points:      points,
			TotalPoints: totalPoints,
			OccurredAt:  time.Now().UTC(),
		}
		if err := s.publisher.PublishPointsChanged(event); err != nil {
			s.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to publish points changed event")
		}
	}
	return tx, nil
}

// settleLevel recomputes the user's level from their new total. An upward
// crossing awards one level-up bonus transaction; the bonus is then folded
// into the level without awarding further bonuses, so a single award never
// cascades into an unbounded point ladder.
func (s *Service) settleLevel(ctx context.Context, userID uint) (int, error) {
	agg, err := s.aggRepo.Get(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to reload aggregate: %w", err)
	}
	if agg == nil {
		return 0, fmt.Errorf("aggregate missing for user %d after award", userID)
	}

	totalPoints := agg.TotalPoints
	newLevel := s.LevelForPoints(totalPoints)
	if newLevel == agg.CurrentLevel {
		return totalPoints, nil
	}

	if newLevel < agg.CurrentLevel {
		// Penalties can drop the total below a boundary; the level follows
		// down without a compensating transaction.
		if err := s.aggRepo.SetLevel(userID, newLevel); err != nil {
			return 0, err
		}
		return totalPoints, nil
	}

	bonus := newLevel * s.leveling.LevelUpBonusStep
	tx := &models.PointTransaction{
		UserID:      userID,
		Action:      models.ActionLevelUp,
		Points:      bonus,
		Description: fmt.Sprintf("Reached level %d", newLevel),
	}
	if err := s.txRepo.Append(tx); err != nil {
		return 0, fmt.Errorf("failed to append level-up bonus: %w", err)
	}
	if err := s.aggRepo.ApplyDelta(userID, bonus, nil); err != nil {
		return 0, fmt.Errorf("failed to apply level-up bonus: %w", err)
	}
	totalPoints += bonus

	// The bonus itself may cross another boundary; the level tracks the new
	// total but only the original crossing pays out.
	finalLevel := s.LevelForPoints(totalPoints)
	if err := s.aggRepo.SetLevel(userID, finalLevel); err != nil {
		return 0, err
	}
	prommetrics.LevelUpsTotal.Inc()
	prommetrics.RecordPointsAwarded(string(models.ActionLevelUp), bonus)
	s.log.Info().Uint("user_id", userID).Int("level", finalLevel).Int("bonus", bonus).Msg("Level up")
	return totalPoints, nil
}

// LevelForPoints maps a point total to a level. Level 1 starts at zero
// points; every PointsPerLevel points is one level, capped at MaxLevel when
// configured.
func (s *Service) LevelForPoints(totalPoints int) int {
	if totalPoints < 0 {
		totalPoints = 0
	}
	level := totalPoints/s.leveling.PointsPerLevel + 1
	if s.leveling.MaxLevel > 0 && level > s.leveling.MaxLevel {
		level = s.leveling.MaxLevel
	}
	return level
}
