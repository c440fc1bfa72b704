package badges

import (
	"context"
	"time"

	"github.com/givehub/discovery-engine/internal/events"
	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/service/points"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// TransactionRepository interface for condition evaluation reads.
type TransactionRepository interface {
	SumPointsByUser(userID uint, since *time.Time) (int, error)
	CountByUserAction(userID uint, action models.Action) (int64, error)
}

// BadgeRepository interface for badge definitions and awards.
type BadgeRepository interface {
	GetAll() ([]models.Badge, error)
	Award(userID, badgeID uint) (bool, error)
	HasUserEarnedBadge(userID, badgeID uint) (bool, error)
	GetUserBadges(userID uint) ([]models.UserBadge, error)
	GetBadgeHoldersCount(badgeID uint) (int64, error)
}

// BonusAwarder writes badge bonus transactions without publishing new
// points-changed events.
type BonusAwarder interface {
	AwardBonus(ctx context.Context, userID uint, action models.Action, opts points.AwardOptions) (*models.PointTransaction, error)
}

// Service evaluates and awards badges.
type Service struct {
	badgeRepo BadgeRepository
	txRepo    TransactionRepository
	bonuses   BonusAwarder
	log       *logger.Logger
}

// NewService creates a new badge service.
func NewService(badgeRepo BadgeRepository, txRepo TransactionRepository, bonuses BonusAwarder, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: badgeRepo,
		txRepo:    txRepo,
		bonuses:   bonuses,
		log:       log,
	}
}

// Subscribe wires the service to points-changed events on the bus.
func (s *Service) Subscribe(ctx context.Context, bus *events.Bus) error {
	return bus.SubscribePointsChanged(ctx, s.HandlePointsChanged)
}

// HandlePointsChanged runs a full badge evaluation for the user whose points
// changed. Evaluation errors are logged, never propagated: a failed badge
// check must not fail the award that triggered it.
func (s *Service) HandlePointsChanged(ctx context.Context, event events.PointsChanged) {
	if _, err := s.EvaluateUser(ctx, event.UserID); err != nil {
		s.log.Error().Err(err).Uint("user_id", event.UserID).Msg("Badge evaluation failed")
	}
}

// EvaluateUser checks every badge the user has not earned yet and awards the
// ones whose conditions all hold. Because a badge bonus adds points, an
// award can satisfy further points conditions; evaluation loops until a pass
// awards nothing. The loop terminates because each badge awards at most once
// per user. Returns the badges awarded in this evaluation.
func (s *Service) EvaluateUser(ctx context.Context, userID uint) ([]models.Badge, error) {
	catalog, err := s.badgeRepo.GetAll()
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge
	for {
		progressed := false
		for i := range catalog {
			badge := &catalog[i]
			held, err := s.badgeRepo.HasUserEarnedBadge(userID, badge.ID)
			if err != nil {
				return awarded, err
			}
			if held {
				continue
			}

			earned, err := s.evaluateBadge(ctx, userID, badge)
			if err != nil {
				s.log.Warn().Err(err).Str("badge", badge.Slug).Msg("Skipping badge with failing evaluation")
				continue
			}
			if !earned {
				continue
			}

			created, err := s.award(ctx, userID, badge)
			if err != nil {
				return awarded, err
			}
			if created {
				awarded = append(awarded, *badge)
				progressed = true
			}
		}
		if !progressed {
			return awarded, nil
		}
	}
}

// award creates the (user, badge) pair and pays out the badge bonus. The
// storage-level unique index makes concurrent duplicate awards a no-op, so
// the bonus is only written by the caller that actually created the pair.
func (s *Service) award(ctx context.Context, userID uint, badge *models.Badge) (bool, error) {
	created, err := s.badgeRepo.Award(userID, badge.ID)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	prommetrics.RecordBadgeAwarded(badge.Slug)
	s.log.Info().Uint("user_id", userID).Str("badge", badge.Slug).Int("bonus", badge.Points).Msg("Badge awarded")

	if _, err := s.bonuses.AwardBonus(ctx, userID, models.ActionBadgeEarned, points.AwardOptions{
		Points:       badge.Points,
		Description:  "Badge earned: " + badge.Name,
		RelatedModel: "badge",
		RelatedID:    badge.ID,
	}); err != nil {
		// The badge row exists; the missing bonus shows up as ledger
		// divergence and is repaired by reconciliation.
		s.log.Error().Err(err).Uint("user_id", userID).Str("badge", badge.Slug).Msg("Failed to award badge bonus")
	}
	return true, nil
}

// GetUserBadges returns the badges a user has earned, newest first.
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	return s.badgeRepo.GetUserBadges(userID)
}

// CatalogBadge is a badge definition plus how many users hold it.
type CatalogBadge struct {
	models.Badge
	Holders int64 `json:"holders"`
}

// Catalog returns all badge definitions with holder counts. A failing count
// leaves the entry at zero holders rather than failing the catalog read.
func (s *Service) Catalog(ctx context.Context) ([]CatalogBadge, error) {
	defs, err := s.badgeRepo.GetAll()
	if err != nil {
		return nil, err
	}
	catalog := make([]CatalogBadge, 0, len(defs))
	for _, badge := range defs {
		holders, err := s.badgeRepo.GetBadgeHoldersCount(badge.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("badge", badge.Slug).Msg("Failed to count badge holders")
		}
		catalog = append(catalog, CatalogBadge{Badge: badge, Holders: holders})
	}
	return catalog, nil
}
