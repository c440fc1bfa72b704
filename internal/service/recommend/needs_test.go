package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/repository"
	"github.com/givehub/discovery-engine/internal/service/preferences"
	"github.com/givehub/discovery-engine/internal/service/trending"
	"github.com/givehub/discovery-engine/pkg/logger"
)

type fakeItemRepo struct {
	needsByID  []models.Need
	byCategory []models.Need
	popular    []models.Need
	teams      []models.Team
	popularErr error
}

func (f *fakeItemRepo) FindNeedsByIDs(ids []uint) ([]models.Need, error) {
	return f.needsByID, nil
}

func (f *fakeItemRepo) FindOpenNeedsByCategories(categories []string, excludeIDs []uint, limit int) ([]models.Need, error) {
	return f.byCategory, nil
}

func (f *fakeItemRepo) FindPopularNeedsExcluding(excludeIDs []uint, limit int) ([]models.Need, error) {
	if f.popularErr != nil {
		return nil, f.popularErr
	}
	if limit > 0 && len(f.popular) > limit {
		return f.popular[:limit], nil
	}
	return f.popular, nil
}

func (f *fakeItemRepo) FindOpenTeams(limit int) ([]models.Team, error) {
	return f.teams, nil
}

type fakeTxRepo struct {
	overlaps []repository.UserItemOverlap
	support  []repository.ItemSupport
}

func (f *fakeTxRepo) ListUsersInteractedWithItems(itemIDs []uint, excludeUserID uint) ([]repository.UserItemOverlap, error) {
	return f.overlaps, nil
}

func (f *fakeTxRepo) CountUsersPerItem(userIDs, excludeItemIDs []uint) ([]repository.ItemSupport, error) {
	return f.support, nil
}

type fakeUserRepo struct {
	mutuals    []uint
	followees  []uint
	candidates []models.User
	followers  map[uint]int64
}

func (f *fakeUserRepo) GetByIDs(ids []uint) ([]models.User, error) {
	return f.candidates, nil
}

func (f *fakeUserRepo) ListMutualFollowIDs(userID uint) ([]uint, error) {
	return f.mutuals, nil
}

func (f *fakeUserRepo) ListFolloweesOfUsers(userIDs []uint) ([]uint, error) {
	return f.followees, nil
}

func (f *fakeUserRepo) CountFollowersAmong(candidateID uint, userIDs []uint) (int64, error) {
	return f.followers[candidateID], nil
}

type fakeAggRepo struct {
	aggs map[uint]*models.UserAggregate
}

func (f *fakeAggRepo) Get(userID uint) (*models.UserAggregate, error) {
	return f.aggs[userID], nil
}

type fakeProfiles struct {
	profile *preferences.Profile
	err     error
}

func (f *fakeProfiles) BuildProfile(ctx context.Context, userID uint) (*preferences.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.profile != nil {
		return f.profile, nil
	}
	return &preferences.Profile{UserID: userID}, nil
}

type fakeTrending struct {
	items []trending.TrendingNeed
}

func (f *fakeTrending) GetTrendingNeeds(ctx context.Context, period trending.Period, limit int) ([]trending.TrendingNeed, error) {
	return f.items, nil
}

func newTestService(items *fakeItemRepo, txs *fakeTxRepo, users *fakeUserRepo, aggs *fakeAggRepo, profiles *fakeProfiles, trendingSvc *fakeTrending) *Service {
	if items == nil {
		items = &fakeItemRepo{}
	}
	if txs == nil {
		txs = &fakeTxRepo{}
	}
	if users == nil {
		users = &fakeUserRepo{}
	}
	if aggs == nil {
		aggs = &fakeAggRepo{}
	}
	if profiles == nil {
		profiles = &fakeProfiles{}
	}
	if trendingSvc == nil {
		trendingSvc = &fakeTrending{}
	}
	return NewService(items, txs, users, aggs, profiles, trendingSvc, logger.Nop())
}

func needNamed(id uint, category string) models.Need {
	return models.Need{ID: id, Category: category}
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyCollaborative, ParseStrategy("collaborative"))
	assert.Equal(t, StrategyPopular, ParseStrategy("popular"))
	assert.Equal(t, StrategyHybrid, ParseStrategy("hybrid"))
	assert.Equal(t, StrategyHybrid, ParseStrategy(""))
	assert.Equal(t, StrategyHybrid, ParseStrategy("magic"))
}

func TestPopularNeedsPositionalScores(t *testing.T) {
	items := &fakeItemRepo{popular: []models.Need{
		{ID: 1, SupporterCount: 900},
		{ID: 2, SupporterCount: 5},
		{ID: 3, SupporterCount: 300},
		{ID: 4, SupporterCount: 7},
		{ID: 5, SupporterCount: 1},
	}}
	svc := newTestService(items, nil, nil, nil, nil, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyPopular, 5)
	require.NoError(t, err)
	require.Len(t, recs, 5)

	// Scores are positional within the limit, not magnitude-based.
	expected := []float64{100, 80, 60, 40, 20}
	for i, rec := range recs {
		assert.InDelta(t, expected[i], rec.Score, 1e-9)
		assert.Equal(t, StrategyPopular, rec.Strategy)
	}
}

func TestCollaborativeNeeds(t *testing.T) {
	profiles := &fakeProfiles{profile: &preferences.Profile{
		UserID:            1,
		InteractedNeedIDs: []uint{10, 11},
	}}
	txs := &fakeTxRepo{
		// Users 2 and 3 share two items with the requester; user 4 only one.
		overlaps: []repository.UserItemOverlap{
			{UserID: 2, Items: 2},
			{UserID: 3, Items: 3},
			{UserID: 4, Items: 1},
		},
		support: []repository.ItemSupport{
			{RelatedID: 20, Users: 2},
			{RelatedID: 21, Users: 1},
		},
	}
	items := &fakeItemRepo{needsByID: []models.Need{{ID: 20}, {ID: 21}}}
	svc := newTestService(items, txs, nil, nil, profiles, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyCollaborative, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Two similar users; item 20 supported by both of them.
	assert.Equal(t, uint(20), recs[0].Need.ID)
	assert.InDelta(t, 100.0, recs[0].Score, 1e-9)
	assert.Equal(t, uint(21), recs[1].Need.ID)
	assert.InDelta(t, 50.0, recs[1].Score, 1e-9)
	assert.NotEmpty(t, recs[0].Reasons)
}

func TestCollaborativeNeedsNoHistory(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil, nil, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyCollaborative, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestContentBasedNeedsScoring(t *testing.T) {
	profiles := &fakeProfiles{profile: &preferences.Profile{
		UserID:           1,
		Categories:       []string{"education"},
		Tags:             []string{"books", "kids"},
		Locations:        []string{"Berlin"},
		InteractionCount: 40,
	}}
	perfect := models.Need{ID: 1, Category: "education", Tags: []string{"books", "kids"}, Location: "Berlin", SupporterCount: 100}
	partial := models.Need{ID: 2, Category: "education", Tags: []string{"books", "water"}, SupporterCount: 50}
	items := &fakeItemRepo{byCategory: []models.Need{partial, perfect}}
	svc := newTestService(items, nil, nil, nil, profiles, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyContentBased, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// 40 + 30 + 15 + 15 for the full match.
	assert.Equal(t, uint(1), recs[0].Need.ID)
	assert.InDelta(t, 100.0, recs[0].Score, 1e-9)

	// 40 + 30*0.5 + 0 + 15*0.5 for the partial match.
	assert.Equal(t, uint(2), recs[1].Need.ID)
	assert.InDelta(t, 62.5, recs[1].Score, 1e-9)

	assert.InDelta(t, 1.0, recs[0].Confidence, 1e-9)
	assert.InDelta(t, 1.0, recs[0].MatchScore["category"], 1e-9)
	assert.InDelta(t, 0.5, recs[1].MatchScore["tags"], 1e-9)
}

func TestTrendingStrategyReusesTrendingScore(t *testing.T) {
	trendingSvc := &fakeTrending{items: []trending.TrendingNeed{
		{Need: models.Need{ID: 1}, Score: trending.Score{TotalScore: 65}, Rank: 1},
	}}
	svc := newTestService(nil, nil, nil, nil, nil, trendingSvc)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyTrending, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 65.0, recs[0].Score, 1e-9)
	assert.Equal(t, StrategyTrending, recs[0].Strategy)
}

func TestHybridNeedsMaxScoreWins(t *testing.T) {
	// Item 20 comes back from collaborative with score 60 and appears in the
	// content-based candidates with score 75. The merge must keep 75.
	profiles := &fakeProfiles{profile: &preferences.Profile{
		UserID:            1,
		Categories:        []string{"education"},
		Tags:              []string{"books"},
		InteractedNeedIDs: []uint{10, 11},
		InteractionCount:  40,
	}}
	txs := &fakeTxRepo{
		overlaps: []repository.UserItemOverlap{
			{UserID: 2, Items: 2},
			{UserID: 3, Items: 2},
			{UserID: 4, Items: 2},
			{UserID: 5, Items: 2},
			{UserID: 6, Items: 2},
		},
		support: []repository.ItemSupport{{RelatedID: 20, Users: 3}},
	}
	contentHit := models.Need{ID: 20, Category: "education", Tags: []string{"books", "other"}, SupporterCount: 200}
	items := &fakeItemRepo{
		needsByID:  []models.Need{{ID: 20}},
		byCategory: []models.Need{contentHit},
		popular:    []models.Need{{ID: 30, SupporterCount: 10}},
	}
	svc := newTestService(items, txs, nil, nil, profiles, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyHybrid, 10)
	require.NoError(t, err)

	seen := make(map[uint]int)
	for _, rec := range recs {
		seen[rec.Need.ID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "need %d appears more than once", id)
	}

	var merged *NeedRecommendation
	for i := range recs {
		if recs[i].Need.ID == 20 {
			merged = &recs[i]
		}
	}
	require.NotNil(t, merged)
	// collaborative: 3/5*100 = 60; content: 40 + 30*0.5 + 15*0.15... the
	// content score must win because it is higher.
	assert.Equal(t, StrategyContentBased, merged.Strategy)
	assert.Greater(t, merged.Score, 60.0)
}

func TestHybridNeedsToleratesSubStrategyFailure(t *testing.T) {
	items := &fakeItemRepo{
		byCategory: []models.Need{{ID: 1, Category: "education"}},
		popularErr: errors.New("db down"),
	}
	profiles := &fakeProfiles{profile: &preferences.Profile{
		UserID:     1,
		Categories: []string{"education"},
	}}
	svc := newTestService(items, nil, nil, nil, profiles, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyHybrid, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint(1), recs[0].Need.ID)
}

func TestHybridNeedsFailsOnlyWhenAllStrategiesFail(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("profile store down")}
	svc := newTestService(&fakeItemRepo{popularErr: errors.New("db down")}, nil, nil, nil, profiles, nil)

	_, err := svc.RecommendNeeds(context.Background(), 1, StrategyHybrid, 10)
	assert.Error(t, err)
}

func TestMergeMaxScore(t *testing.T) {
	recs := []NeedRecommendation{
		{Need: models.Need{ID: 1}, Score: 60, Strategy: StrategyCollaborative},
		{Need: models.Need{ID: 2}, Score: 40, Strategy: StrategyPopular},
		{Need: models.Need{ID: 1}, Score: 75, Strategy: StrategyContentBased},
		{Need: models.Need{ID: 2}, Score: 40, Strategy: StrategyContentBased},
	}

	merged := mergeMaxScore(recs)
	require.Len(t, merged, 2)

	assert.Equal(t, uint(1), merged[0].Need.ID)
	assert.InDelta(t, 75.0, merged[0].Score, 1e-9)
	assert.Equal(t, StrategyContentBased, merged[0].Strategy)

	// Equal scores keep the earliest occurrence.
	assert.Equal(t, uint(2), merged[1].Need.ID)
	assert.Equal(t, StrategyPopular, merged[1].Strategy)
}

func TestRecommendNeedsDefaultsLimit(t *testing.T) {
	items := &fakeItemRepo{popular: make([]models.Need, 20)}
	for i := range items.popular {
		items.popular[i].ID = uint(i + 1)
	}
	svc := newTestService(items, nil, nil, nil, nil, nil)

	recs, err := svc.RecommendNeeds(context.Background(), 1, StrategyPopular, 0)
	require.NoError(t, err)
	assert.Len(t, recs, DefaultLimit)
}
