package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/service/preferences"
)

// RecommendUsers suggests people to follow from the mutual-follow graph.
// Candidates are users followed by the requester's mutual connections,
// scored along mutual connections (40), shared interests (35) and platform
// activity (25).
func (s *Service) RecommendUsers(ctx context.Context, userID uint, limit int) ([]UserRecommendation, error) {
	limit = normalizeLimit(limit)
	prommetrics.RecommendationRequestsTotal.WithLabelValues("users", "graph").Inc()

	mutuals, err := s.userRepo.ListMutualFollowIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutual follows: %w", err)
	}
	if len(mutuals) == 0 {
		return []UserRecommendation{}, nil
	}

	profile, err := s.profiles.BuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile: %w", err)
	}

	candidateIDs, err := s.userRepo.ListFolloweesOfUsers(mutuals)
	if err != nil {
		return nil, fmt.Errorf("failed to expand follow graph: %w", err)
	}

	known := make(map[uint]bool, len(profile.FollowedUserIDs)+1)
	known[userID] = true
	for _, id := range profile.FollowedUserIDs {
		known[id] = true
	}
	filtered := make([]uint, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if !known[id] {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return []UserRecommendation{}, nil
	}

	candidates, err := s.userRepo.GetByIDs(filtered)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	recs := make([]UserRecommendation, 0, len(candidates))
	for _, candidate := range candidates {
		rec, err := s.scoreUserCandidate(candidate, mutuals, profile)
		if err != nil {
			s.log.Warn().Err(err).Uint("candidate_id", candidate.ID).Msg("Failed to score user candidate, skipping")
			continue
		}
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].User.ID < recs[j].User.ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *Service) scoreUserCandidate(candidate models.User, mutuals []uint, profile *preferences.Profile) (UserRecommendation, error) {
	mutualCount, err := s.userRepo.CountFollowersAmong(candidate.ID, mutuals)
	if err != nil {
		return UserRecommendation{}, err
	}
	mutualScore := clamp01(float64(mutualCount) / 5)

	interests := make(map[string]bool, len(profile.Tags)+len(profile.Categories)+len(profile.Skills))
	for _, set := range [][]string{profile.Tags, profile.Categories, profile.Skills} {
		for _, value := range set {
			interests[value] = true
		}
	}
	shared := 0
	for _, skill := range candidate.Skills {
		if interests[strings.ToLower(strings.TrimSpace(skill))] {
			shared++
		}
	}
	interestScore := clamp01(float64(shared) / 3)

	var activityScore float64
	agg, err := s.aggRepo.Get(candidate.ID)
	if err != nil {
		return UserRecommendation{}, err
	}
	if agg != nil {
		activityScore = clamp01(float64(agg.TotalPoints) / 1000)
	}

	rec := UserRecommendation{
		User:       candidate,
		Score:      mutualScore*40 + interestScore*35 + activityScore*25,
		Confidence: clamp01(float64(mutualCount) / 5),
		MatchScore: map[string]float64{
			"mutual_connections": mutualScore,
			"shared_interests":   interestScore,
			"activity":           activityScore,
		},
	}

	if mutualCount > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "mutual_connections",
			Description: fmt.Sprintf("Followed by %d of your connections", mutualCount),
			Weight:      0.4 * mutualScore,
		})
	}
	if shared > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "shared_interests",
			Description: fmt.Sprintf("Shares %d of your interests", shared),
			Weight:      0.35 * interestScore,
		})
	}
	if activityScore >= 0.5 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "activity",
			Description: "Highly active on the platform",
			Weight:      0.25 * activityScore,
		})
	}
	return rec, nil
}

// RecommendTeams suggests open teams scored along category match (35),
// location match (25), tag overlap (20) and team size (20).
func (s *Service) RecommendTeams(ctx context.Context, userID uint, limit int) ([]TeamRecommendation, error) {
	limit = normalizeLimit(limit)
	prommetrics.RecommendationRequestsTotal.WithLabelValues("teams", "content").Inc()

	profile, err := s.profiles.BuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile: %w", err)
	}

	teams, err := s.itemRepo.FindOpenTeams(limit * 3)
	if err != nil {
		return nil, fmt.Errorf("failed to load open teams: %w", err)
	}

	recs := make([]TeamRecommendation, 0, len(teams))
	for _, team := range teams {
		recs = append(recs, scoreTeamAgainstProfile(team, profile))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Team.ID < recs[j].Team.ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func scoreTeamAgainstProfile(team models.Team, profile *preferences.Profile) TeamRecommendation {
	var categoryMatch float64
	category := strings.ToLower(strings.TrimSpace(team.Category))
	for _, fav := range profile.Categories {
		if category != "" && category == fav {
			categoryMatch = 1
			break
		}
	}

	var locationMatch float64
	for _, location := range profile.Locations {
		if team.Location != "" && team.Location == location {
			locationMatch = 1
			break
		}
	}

	var tagOverlap float64
	if len(team.Tags) > 0 {
		favorite := make(map[string]bool, len(profile.Tags))
		for _, tag := range profile.Tags {
			favorite[tag] = true
		}
		matching := 0
		for _, tag := range team.Tags {
			if favorite[strings.ToLower(strings.TrimSpace(tag))] {
				matching++
			}
		}
		tagOverlap = float64(matching) / float64(len(team.Tags))
	}

	sizeScore := clamp01(float64(team.MemberCount) / 50)

	rec := TeamRecommendation{
		Team:       team,
		Score:      categoryMatch*35 + locationMatch*25 + tagOverlap*20 + sizeScore*20,
		Confidence: clamp01(float64(profile.InteractionCount) / 20),
		MatchScore: map[string]float64{
			"category": categoryMatch,
			"location": locationMatch,
			"tags":     tagOverlap,
			"size":     sizeScore,
		},
	}

	if categoryMatch > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "category",
			Description: fmt.Sprintf("Works on %s causes you care about", team.Category),
			Weight:      0.35,
		})
	}
	if locationMatch > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "location",
			Description: fmt.Sprintf("Active near %s", team.Location),
			Weight:      0.25,
		})
	}
	if tagOverlap > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "tags",
			Description: "Focuses on topics you engage with",
			Weight:      0.2 * tagOverlap,
		})
	}
	if sizeScore >= 0.5 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "size",
			Description: fmt.Sprintf("An established team of %d members", team.MemberCount),
			Weight:      0.2 * sizeScore,
		})
	}
	return rec
}
