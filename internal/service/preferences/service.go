// Package preferences derives per-user preference profiles from the point
// ledger's interaction history.
package preferences

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// TransactionRepository interface for interaction history reads.
type TransactionRepository interface {
	ListByUserActions(userID uint, actions []models.Action) ([]models.PointTransaction, error)
}

// ItemRepository interface for resolving interacted needs.
type ItemRepository interface {
	FindNeedsByIDs(ids []uint) ([]models.Need, error)
}

// UserRepository interface for follow-graph and skill reads.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	ListFolloweeIDs(userID uint) ([]uint, error)
}

// Profile summarizes what a user has shown interest in. All sets are
// deduplicated and sorted; tags and categories are lowercased. The profile
// is rebuilt from the ledger on every call and is never the source of truth.
type Profile struct {
	UserID              uint      `json:"user_id"`
	Categories          []string  `json:"categories"`
	SupportedCategories []string  `json:"supported_categories"`
	Tags                []string  `json:"tags"`
	Locations           []string  `json:"locations"`
	Skills              []string  `json:"skills"`
	InteractedNeedIDs   []uint    `json:"interacted_need_ids"`
	FollowedUserIDs     []uint    `json:"followed_user_ids"`
	InteractionCount    int       `json:"interaction_count"`
	LastUpdated         time.Time `json:"last_updated"`
}

// HasSignal reports whether the profile carries enough history to drive
// content matching.
func (p *Profile) HasSignal() bool {
	return len(p.Categories) > 0 || len(p.Tags) > 0 || len(p.Locations) > 0
}

// Service builds preference profiles.
type Service struct {
	txRepo   TransactionRepository
	itemRepo ItemRepository
	userRepo UserRepository
	log      *logger.Logger
}

// NewService creates a new preferences service.
func NewService(txRepo TransactionRepository, itemRepo ItemRepository, userRepo UserRepository, log *logger.Logger) *Service {
	return &Service{txRepo: txRepo, itemRepo: itemRepo, userRepo: userRepo, log: log}
}

// BuildProfile derives a user's preference profile from their interaction
// ledger rows, follow graph and declared skills. A user with no history gets
// an empty profile, not an error.
func (s *Service) BuildProfile(ctx context.Context, userID uint) (*Profile, error) {
	txs, err := s.txRepo.ListByUserActions(userID, models.InteractionActions)
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction history: %w", err)
	}

	profile := &Profile{
		UserID:           userID,
		InteractionCount: len(txs),
		LastUpdated:      time.Now().UTC(),
	}
	s.fillUserSignals(profile)

	needIDs := make([]uint, 0, len(txs))
	seen := make(map[uint]bool, len(txs))
	supportedIDs := make(map[uint]bool)
	for _, tx := range txs {
		if tx.RelatedModel != "need" || tx.RelatedID == 0 {
			continue
		}
		if !seen[tx.RelatedID] {
			seen[tx.RelatedID] = true
			needIDs = append(needIDs, tx.RelatedID)
		}
		if tx.Action == models.ActionNeedSupported {
			supportedIDs[tx.RelatedID] = true
		}
	}
	profile.InteractedNeedIDs = needIDs

	if len(needIDs) == 0 {
		profile.Categories = []string{}
		profile.SupportedCategories = []string{}
		profile.Tags = []string{}
		profile.Locations = []string{}
		return profile, nil
	}

	needs, err := s.itemRepo.FindNeedsByIDs(needIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve interacted needs: %w", err)
	}

	categories := make(map[string]bool)
	supported := make(map[string]bool)
	tags := make(map[string]bool)
	locations := make(map[string]bool)
	for _, need := range needs {
		category := strings.ToLower(strings.TrimSpace(need.Category))
		if category != "" {
			categories[category] = true
			if supportedIDs[need.ID] {
				supported[category] = true
			}
		}
		for _, tag := range need.Tags {
			name := strings.ToLower(strings.TrimSpace(tag))
			if name != "" {
				tags[name] = true
			}
		}
		if location := strings.TrimSpace(need.Location); location != "" {
			locations[location] = true
		}
	}

	profile.Categories = sortedKeys(categories)
	profile.SupportedCategories = sortedKeys(supported)
	profile.Tags = sortedKeys(tags)
	profile.Locations = sortedKeys(locations)
	return profile, nil
}

// fillUserSignals attaches the follow graph and declared skills. Both are
// soft signals, so lookup failures degrade to empty sets with a warning.
func (s *Service) fillUserSignals(profile *Profile) {
	profile.FollowedUserIDs = []uint{}
	profile.Skills = []string{}

	if followees, err := s.userRepo.ListFolloweeIDs(profile.UserID); err != nil {
		s.log.Warn().Err(err).Uint("user_id", profile.UserID).Msg("Failed to list followees for profile")
	} else if followees != nil {
		profile.FollowedUserIDs = followees
	}

	user, err := s.userRepo.GetByID(profile.UserID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", profile.UserID).Msg("Failed to load user for profile skills")
		return
	}
	skills := make(map[string]bool, len(user.Skills))
	for _, skill := range user.Skills {
		name := strings.ToLower(strings.TrimSpace(skill))
		if name != "" {
			skills[name] = true
		}
	}
	profile.Skills = sortedKeys(skills)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
