package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	prommetrics "github.com/givehub/discovery-engine/internal/metrics"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/service/preferences"
	"github.com/givehub/discovery-engine/internal/service/trending"
)

// minOverlapForSimilarity is how many shared items make another user
// "similar" for collaborative filtering.
const minOverlapForSimilarity = 2

// RecommendNeeds returns up to limit scored need suggestions for a user,
// produced by the requested strategy.
func (s *Service) RecommendNeeds(ctx context.Context, userID uint, strategy Strategy, limit int) ([]NeedRecommendation, error) {
	limit = normalizeLimit(limit)
	prommetrics.RecommendationRequestsTotal.WithLabelValues("needs", string(strategy)).Inc()

	switch strategy {
	case StrategyCollaborative:
		return s.collaborativeNeeds(ctx, userID, limit)
	case StrategyContentBased:
		return s.contentBasedNeeds(ctx, userID, limit)
	case StrategyPopular:
		return s.popularNeeds(ctx, userID, limit)
	case StrategyTrending:
		return s.trendingNeeds(ctx, limit)
	default:
		return s.hybridNeeds(ctx, userID, limit)
	}
}

// collaborativeNeeds recommends needs that users with overlapping interaction
// history also touched. A user is similar once they share at least two
// interacted items with the requester.
func (s *Service) collaborativeNeeds(ctx context.Context, userID uint, limit int) ([]NeedRecommendation, error) {
	profile, err := s.profiles.BuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("collaborative: %w", err)
	}
	if len(profile.InteractedNeedIDs) == 0 {
		return []NeedRecommendation{}, nil
	}

	overlaps, err := s.txRepo.ListUsersInteractedWithItems(profile.InteractedNeedIDs, userID)
	if err != nil {
		return nil, fmt.Errorf("collaborative: %w", err)
	}
	similarUsers := make([]uint, 0, len(overlaps))
	for _, overlap := range overlaps {
		if overlap.Items >= minOverlapForSimilarity {
			similarUsers = append(similarUsers, overlap.UserID)
		}
	}
	if len(similarUsers) == 0 {
		return []NeedRecommendation{}, nil
	}

	support, err := s.txRepo.CountUsersPerItem(similarUsers, profile.InteractedNeedIDs)
	if err != nil {
		return nil, fmt.Errorf("collaborative: %w", err)
	}
	sort.SliceStable(support, func(i, j int) bool {
		if support[i].Users != support[j].Users {
			return support[i].Users > support[j].Users
		}
		return support[i].RelatedID < support[j].RelatedID
	})
	if len(support) > limit {
		support = support[:limit]
	}

	ids := make([]uint, 0, len(support))
	supporters := make(map[uint]int, len(support))
	for _, item := range support {
		ids = append(ids, item.RelatedID)
		supporters[item.RelatedID] = item.Users
	}
	needs, err := s.itemRepo.FindNeedsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("collaborative: %w", err)
	}
	needByID := make(map[uint]models.Need, len(needs))
	for _, need := range needs {
		needByID[need.ID] = need
	}

	recs := make([]NeedRecommendation, 0, len(support))
	for _, item := range support {
		need, ok := needByID[item.RelatedID]
		if !ok {
			continue
		}
		score := float64(item.Users) / float64(len(similarUsers)) * 100
		if score > 100 {
			score = 100
		}
		recs = append(recs, NeedRecommendation{
			Need:       need,
			Score:      score,
			Confidence: clamp01(float64(item.Users) / 10),
			Strategy:   StrategyCollaborative,
			Reasons: []Reason{{
				Type:        "similar_users",
				Description: fmt.Sprintf("%d people with similar interests engaged with this need", item.Users),
				Weight:      score / 100,
			}},
		})
	}
	return recs, nil
}

// contentBasedNeeds recommends open needs matching the user's preference
// profile along category, tag, location and popularity dimensions.
func (s *Service) contentBasedNeeds(ctx context.Context, userID uint, limit int) ([]NeedRecommendation, error) {
	profile, err := s.profiles.BuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("content_based: %w", err)
	}

	// Overfetch so scoring can reorder within a wider candidate set.
	candidates, err := s.itemRepo.FindOpenNeedsByCategories(profile.Categories, profile.InteractedNeedIDs, limit*3)
	if err != nil {
		return nil, fmt.Errorf("content_based: %w", err)
	}

	recs := make([]NeedRecommendation, 0, len(candidates))
	for _, need := range candidates {
		recs = append(recs, scoreNeedAgainstProfile(need, profile))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Need.ID < recs[j].Need.ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// scoreNeedAgainstProfile computes the weighted content match of one need.
// Weights sum to 100: category 40, tags 30, location 15, popularity 15.
func scoreNeedAgainstProfile(need models.Need, profile *preferences.Profile) NeedRecommendation {
	var categoryMatch float64
	category := strings.ToLower(strings.TrimSpace(need.Category))
	for _, fav := range profile.Categories {
		if category != "" && category == fav {
			categoryMatch = 1
			break
		}
	}

	var tagMatch float64
	if len(need.Tags) > 0 {
		favorite := make(map[string]bool, len(profile.Tags))
		for _, tag := range profile.Tags {
			favorite[tag] = true
		}
		matching := 0
		for _, tag := range need.Tags {
			if favorite[strings.ToLower(strings.TrimSpace(tag))] {
				matching++
			}
		}
		tagMatch = float64(matching) / float64(len(need.Tags))
	}

	var locationMatch float64
	for _, location := range profile.Locations {
		if need.Location != "" && need.Location == location {
			locationMatch = 1
			break
		}
	}

	popularity := float64(need.SupporterCount) / 100
	if popularity > 1 {
		popularity = 1
	}

	rec := NeedRecommendation{
		Need:       need,
		Score:      categoryMatch*40 + tagMatch*30 + locationMatch*15 + popularity*15,
		Confidence: clamp01(float64(profile.InteractionCount) / 20),
		Strategy:   StrategyContentBased,
		MatchScore: map[string]float64{
			"category":   categoryMatch,
			"tags":       tagMatch,
			"location":   locationMatch,
			"popularity": popularity,
		},
	}

	if categoryMatch > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "category",
			Description: fmt.Sprintf("Matches your interest in %s", need.Category),
			Weight:      0.4,
		})
	}
	if tagMatch > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "tags",
			Description: "Tagged with topics you engage with",
			Weight:      0.3 * tagMatch,
		})
	}
	if locationMatch > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "location",
			Description: fmt.Sprintf("Near %s", need.Location),
			Weight:      0.15,
		})
	}
	if popularity > 0 {
		rec.Reasons = append(rec.Reasons, Reason{
			Type:        "popularity",
			Description: fmt.Sprintf("Already supported by %d people", need.SupporterCount),
			Weight:      0.15 * popularity,
		})
	}
	return rec
}

// popularNeeds recommends the most-supported open needs the user has not
// touched. The score is purely positional within the requested limit.
func (s *Service) popularNeeds(ctx context.Context, userID uint, limit int) ([]NeedRecommendation, error) {
	profile, err := s.profiles.BuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("popular: %w", err)
	}

	candidates, err := s.itemRepo.FindPopularNeedsExcluding(profile.InteractedNeedIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("popular: %w", err)
	}

	recs := make([]NeedRecommendation, 0, len(candidates))
	for i, need := range candidates {
		score := float64(limit-i) / float64(limit) * 100
		recs = append(recs, NeedRecommendation{
			Need:       need,
			Score:      score,
			Confidence: 0.4,
			Strategy:   StrategyPopular,
			Reasons: []Reason{{
				Type:        "popular",
				Description: fmt.Sprintf("Supported by %d people", need.SupporterCount),
				Weight:      score / 100,
			}},
		})
	}
	return recs, nil
}

// trendingNeeds delegates to the trending scorer and reuses its raw score.
func (s *Service) trendingNeeds(ctx context.Context, limit int) ([]NeedRecommendation, error) {
	items, err := s.trending.GetTrendingNeeds(ctx, trending.Period24h, limit)
	if err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}

	recs := make([]NeedRecommendation, 0, len(items))
	for _, item := range items {
		recs = append(recs, NeedRecommendation{
			Need:       item.Need,
			Score:      item.Score.TotalScore,
			Confidence: clamp01(item.Score.TotalScore / 100),
			Strategy:   StrategyTrending,
			Reasons: []Reason{{
				Type:        "trending",
				Description: "Trending right now",
				Weight:      clamp01(item.Score.TotalScore / 100),
			}},
		})
	}
	return recs, nil
}

// hybridNeeds fans out the collaborative, content-based and popular
// strategies concurrently and merges their output. A failing sub-strategy is
// excluded rather than failing the request; the request only errors when
// every sub-strategy fails.
func (s *Service) hybridNeeds(ctx context.Context, userID uint, limit int) ([]NeedRecommendation, error) {
	half := limit / 2
	if half < 1 {
		half = 1
	}
	quarter := limit / 4
	if quarter < 1 {
		quarter = 1
	}

	sources := []struct {
		strategy Strategy
		run      func() ([]NeedRecommendation, error)
	}{
		{StrategyCollaborative, func() ([]NeedRecommendation, error) { return s.collaborativeNeeds(ctx, userID, half) }},
		{StrategyContentBased, func() ([]NeedRecommendation, error) { return s.contentBasedNeeds(ctx, userID, half) }},
		{StrategyPopular, func() ([]NeedRecommendation, error) { return s.popularNeeds(ctx, userID, quarter) }},
	}

	results := make([][]NeedRecommendation, len(sources))
	errs := make([]error, len(sources))
	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, run func() ([]NeedRecommendation, error)) {
			defer wg.Done()
			results[i], errs[i] = run()
		}(i, source.run)
	}
	wg.Wait()

	failed := 0
	var merged []NeedRecommendation
	for i, source := range sources {
		if errs[i] != nil {
			failed++
			prommetrics.RecommendationStrategyFailuresTotal.WithLabelValues(string(source.strategy)).Inc()
			s.log.Warn().Err(errs[i]).Str("strategy", string(source.strategy)).Msg("Hybrid sub-strategy failed, excluding its contribution")
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failed == len(sources) {
		return nil, fmt.Errorf("hybrid: all sub-strategies failed: %w", errs[0])
	}

	deduped := mergeMaxScore(merged)
	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Score != deduped[j].Score {
			return deduped[i].Score > deduped[j].Score
		}
		return deduped[i].Need.ID < deduped[j].Need.ID
	})
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped, nil
}

// mergeMaxScore deduplicates recommendations by need id, keeping the
// occurrence with the highest score. Ties keep the earliest occurrence.
func mergeMaxScore(recs []NeedRecommendation) []NeedRecommendation {
	best := make(map[uint]int, len(recs))
	order := make([]uint, 0, len(recs))
	for i, rec := range recs {
		existing, seen := best[rec.Need.ID]
		if !seen {
			best[rec.Need.ID] = i
			order = append(order, rec.Need.ID)
			continue
		}
		if rec.Score > recs[existing].Score {
			best[rec.Need.ID] = i
		}
	}

	merged := make([]NeedRecommendation, 0, len(order))
	for _, id := range order {
		merged = append(merged, recs[best[id]])
	}
	return merged
}
