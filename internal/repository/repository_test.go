package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/givehub/discovery-engine/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	db := &DB{gormDB}
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func appendTx(t *testing.T, repo *TransactionRepository, userID uint, action models.Action, points int, createdAt time.Time) {
	t.Helper()
	require.NoError(t, repo.Append(&models.PointTransaction{
		UserID:    userID,
		Action:    action,
		Points:    points,
		CreatedAt: createdAt,
	}))
}

// Transaction repository

func TestSumPointsByUserEmptyLedger(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))

	sum, err := repo.SumPointsByUser(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum)
}

func TestSumPointsByUserSignedSum(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	now := time.Now()
	appendTx(t, repo, 1, models.ActionNeedCreated, 100, now)
	appendTx(t, repo, 1, models.ActionPenalty, -30, now)
	appendTx(t, repo, 2, models.ActionNeedCreated, 999, now)

	sum, err := repo.SumPointsByUser(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 70, sum)
}

func TestSumPointsByUserWindow(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	now := time.Now()
	appendTx(t, repo, 1, models.ActionNeedCreated, 100, now.Add(-48*time.Hour))
	appendTx(t, repo, 1, models.ActionNeedSupported, 50, now.Add(-time.Hour))

	since := now.Add(-24 * time.Hour)
	sum, err := repo.SumPointsByUser(1, &since)
	require.NoError(t, err)
	assert.Equal(t, 50, sum)
}

func TestSumPointsGroupedByUserOrdering(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	now := time.Now()
	appendTx(t, repo, 3, models.ActionNeedCreated, 100, now)
	appendTx(t, repo, 1, models.ActionNeedCreated, 100, now)
	appendTx(t, repo, 2, models.ActionNeedCreated, 250, now)

	sums, err := repo.SumPointsGroupedByUser(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, UserPointSum{UserID: 2, Points: 250}, sums[0])
	// Equal sums break ties by user id.
	assert.Equal(t, UserPointSum{UserID: 1, Points: 100}, sums[1])
	assert.Equal(t, UserPointSum{UserID: 3, Points: 100}, sums[2])
}

func TestListByUserActionsFiltersAndOrders(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	now := time.Now()
	appendTx(t, repo, 1, models.ActionNeedSupported, 50, now.Add(-2*time.Hour))
	appendTx(t, repo, 1, models.ActionLevelUp, 50, now.Add(-90*time.Minute))
	appendTx(t, repo, 1, models.ActionCommentPosted, 10, now.Add(-time.Hour))

	txs, err := repo.ListByUserActions(1, models.InteractionActions)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.ActionNeedSupported, txs[0].Action)
	assert.Equal(t, models.ActionCommentPosted, txs[1].Action)
}

func TestCountActionsGroupedByUser(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	now := time.Now()
	appendTx(t, repo, 1, models.ActionNeedSupported, 50, now)
	appendTx(t, repo, 1, models.ActionNeedSupported, 50, now)
	appendTx(t, repo, 2, models.ActionNeedSupported, 50, now.Add(-48*time.Hour))

	counts, err := repo.CountActionsGroupedByUser(models.ActionNeedSupported, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, UserActionCount{UserID: 1, Count: 2}, counts[0])
}

func TestListUsersInteractedWithItems(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	now := time.Now()
	interact := func(userID, needID uint) {
		require.NoError(t, repo.Append(&models.PointTransaction{
			UserID:       userID,
			Action:       models.ActionNeedSupported,
			Points:       50,
			RelatedModel: "need",
			RelatedID:    needID,
			CreatedAt:    now,
		}))
	}
	interact(1, 10)
	interact(1, 11)
	interact(2, 10)
	interact(2, 11)
	interact(2, 11) // duplicate interaction counts once
	interact(3, 10)

	overlaps, err := repo.ListUsersInteractedWithItems([]uint{10, 11}, 1)
	require.NoError(t, err)
	require.Len(t, overlaps, 2)

	byUser := make(map[uint]int, len(overlaps))
	for _, o := range overlaps {
		byUser[o.UserID] = o.Items
	}
	assert.Equal(t, 2, byUser[2])
	assert.Equal(t, 1, byUser[3])
	assert.NotContains(t, byUser, uint(1))
}

func TestCountUsersPerItemExcludesKnownItems(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	now := time.Now()
	interact := func(userID, needID uint) {
		require.NoError(t, repo.Append(&models.PointTransaction{
			UserID:       userID,
			Action:       models.ActionNeedFollowed,
			Points:       5,
			RelatedModel: "need",
			RelatedID:    needID,
			CreatedAt:    now,
		}))
	}
	interact(2, 10)
	interact(2, 20)
	interact(3, 20)

	support, err := repo.CountUsersPerItem([]uint{2, 3}, []uint{10})
	require.NoError(t, err)
	require.Len(t, support, 1)
	assert.Equal(t, ItemSupport{RelatedID: 20, Users: 2}, support[0])
}

func TestListUserIDs(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	now := time.Now()
	appendTx(t, repo, 5, models.ActionNeedCreated, 100, now)
	appendTx(t, repo, 2, models.ActionNeedCreated, 100, now)
	appendTx(t, repo, 5, models.ActionNeedSupported, 50, now)

	ids, err := repo.ListUserIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 5}, ids)
}

// Aggregate repository

func TestAggregateGetMissingUser(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))

	agg, err := repo.Get(42)
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestApplyDeltaCreatesAndBumps(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))

	require.NoError(t, repo.ApplyDelta(1, 100, map[string]int{"needs_created": 1, "total_contributions": 1}))
	require.NoError(t, repo.ApplyDelta(1, -30, nil))

	agg, err := repo.Get(1)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 70, agg.TotalPoints)
	assert.Equal(t, 1, agg.NeedsCreated)
	assert.Equal(t, 1, agg.TotalContributions)
	assert.Equal(t, 1, agg.CurrentLevel)
}

func TestApplyDeltaRejectsUnknownColumn(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))

	err := repo.ApplyDelta(1, 10, map[string]int{"total_points; DROP TABLE users": 1})
	assert.Error(t, err)
}

func TestListTopOrdering(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))
	require.NoError(t, repo.ApplyDelta(1, 130, nil))
	require.NoError(t, repo.ApplyDelta(2, 90, nil))
	require.NoError(t, repo.ApplyDelta(3, 200, nil))

	aggs, err := repo.ListTop("total_points", 2)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, uint(3), aggs[0].UserID)
	assert.Equal(t, uint(1), aggs[1].UserID)
}

func TestListTopRejectsUnknownColumn(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))

	_, err := repo.ListTop("password", 10)
	assert.Error(t, err)
}

func TestCountWithMetricGreaterThanIsStrict(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))
	require.NoError(t, repo.ApplyDelta(1, 130, nil))
	require.NoError(t, repo.ApplyDelta(2, 90, nil))
	require.NoError(t, repo.ApplyDelta(3, 200, nil))
	require.NoError(t, repo.ApplyDelta(4, 90, nil))

	// Ties do not outrank each other.
	count, err := repo.CountWithMetricGreaterThan("total_points", 90)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRebuildReplacesAggregate(t *testing.T) {
	repo := NewAggregateRepository(newTestDB(t))
	require.NoError(t, repo.ApplyDelta(1, 999, map[string]int{"needs_created": 3}))

	require.NoError(t, repo.Rebuild(&models.UserAggregate{
		UserID:       1,
		TotalPoints:  140,
		CurrentLevel: 1,
		NeedsCreated: 1,
	}))

	agg, err := repo.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 140, agg.TotalPoints)
	assert.Equal(t, 1, agg.NeedsCreated)
}

// Badge repository

func TestAwardIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewBadgeRepository(db)
	require.NoError(t, repo.SeedCatalog([]models.Badge{{Slug: "first", Name: "First"}}))
	badge, err := repo.GetBySlug("first")
	require.NoError(t, err)

	created, err := repo.Award(1, badge.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Award(1, badge.ID)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := repo.GetUserBadgeCount(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSeedCatalogUpsertsBySlug(t *testing.T) {
	repo := NewBadgeRepository(newTestDB(t))
	require.NoError(t, repo.SeedCatalog([]models.Badge{{Slug: "first", Name: "First", Points: 10}}))
	original, err := repo.GetBySlug("first")
	require.NoError(t, err)

	require.NoError(t, repo.SeedCatalog([]models.Badge{{Slug: "first", Name: "First Need", Points: 25}}))
	updated, err := repo.GetBySlug("first")
	require.NoError(t, err)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, "First Need", updated.Name)
	assert.Equal(t, 25, updated.Points)
}

func TestGetUserBadgesPreloadsBadge(t *testing.T) {
	db := newTestDB(t)
	repo := NewBadgeRepository(db)
	require.NoError(t, repo.SeedCatalog([]models.Badge{{Slug: "first", Name: "First"}}))
	badge, err := repo.GetBySlug("first")
	require.NoError(t, err)
	_, err = repo.Award(1, badge.ID)
	require.NoError(t, err)

	userBadges, err := repo.GetUserBadges(1)
	require.NoError(t, err)
	require.Len(t, userBadges, 1)
	assert.Equal(t, "first", userBadges[0].Badge.Slug)
}

// Item repository

func TestFindPopularNeedsExcluding(t *testing.T) {
	db := newTestDB(t)
	repo := NewItemRepository(db)
	require.NoError(t, db.Create(&models.Need{ID: 1, CreatorID: 1, Title: "a", Open: true, SupporterCount: 5}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 2, CreatorID: 1, Title: "b", Open: true, SupporterCount: 50}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 3, CreatorID: 1, Title: "c", Open: false, SupporterCount: 99}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 4, CreatorID: 1, Title: "d", Open: true, SupporterCount: 20}).Error)

	needs, err := repo.FindPopularNeedsExcluding([]uint{4}, 10)
	require.NoError(t, err)
	require.Len(t, needs, 2)
	assert.Equal(t, uint(2), needs[0].ID)
	assert.Equal(t, uint(1), needs[1].ID)
}

func TestFindOpenNeedsByCategories(t *testing.T) {
	db := newTestDB(t)
	repo := NewItemRepository(db)
	require.NoError(t, db.Create(&models.Need{ID: 1, CreatorID: 1, Title: "a", Open: true, Category: "education"}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 2, CreatorID: 1, Title: "b", Open: true, Category: "health"}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 3, CreatorID: 1, Title: "c", Open: true, Category: "education"}).Error)

	needs, err := repo.FindOpenNeedsByCategories([]string{"education"}, []uint{3}, 10)
	require.NoError(t, err)
	require.Len(t, needs, 1)
	assert.Equal(t, uint(1), needs[0].ID)
}

func TestFindNeedsActiveSinceSkipsClosed(t *testing.T) {
	db := newTestDB(t)
	repo := NewItemRepository(db)
	now := time.Now()
	require.NoError(t, db.Create(&models.Need{ID: 1, CreatorID: 1, Title: "a", Open: true, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 2, CreatorID: 1, Title: "b", Open: false, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Need{ID: 3, CreatorID: 1, Title: "c", Open: true, CreatedAt: now.Add(-72 * time.Hour), UpdatedAt: now.Add(-72 * time.Hour)}).Error)

	needs, err := repo.FindNeedsActiveSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, needs, 1)
	assert.Equal(t, uint(1), needs[0].ID)
}

func TestFindTagsByNames(t *testing.T) {
	db := newTestDB(t)
	repo := NewItemRepository(db)
	require.NoError(t, db.Create(&models.Tag{Name: "education", UsageCount: 40}).Error)
	require.NoError(t, db.Create(&models.Tag{Name: "health", UsageCount: 12}).Error)

	tags, err := repo.FindTagsByNames([]string{"education"})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 40, tags[0].UsageCount)

	tags, err = repo.FindTagsByNames(nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestFindOpenTeams(t *testing.T) {
	db := newTestDB(t)
	repo := NewItemRepository(db)
	require.NoError(t, db.Create(&models.Team{ID: 1, Name: "a", Open: true, MemberCount: 3}).Error)
	require.NoError(t, db.Create(&models.Team{ID: 2, Name: "b", Open: false, MemberCount: 40}).Error)
	require.NoError(t, db.Create(&models.Team{ID: 3, Name: "c", Open: true, MemberCount: 10}).Error)

	teams, err := repo.FindOpenTeams(10)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, uint(3), teams[0].ID)
	assert.Equal(t, uint(1), teams[1].ID)
}

// User repository

func follow(t *testing.T, db *DB, follower, followee uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{FollowerID: follower, FolloweeID: followee}).Error)
}

func TestListMutualFollowIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	follow(t, db, 1, 2)
	follow(t, db, 2, 1)
	follow(t, db, 1, 3) // not mutual
	follow(t, db, 4, 1) // not mutual

	ids, err := repo.ListMutualFollowIDs(1)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids)
}

func TestListFolloweesOfUsersIsDistinct(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	follow(t, db, 2, 5)
	follow(t, db, 3, 5)
	follow(t, db, 3, 6)

	ids, err := repo.ListFolloweesOfUsers([]uint{2, 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{5, 6}, ids)
}

func TestCountFollowersAmong(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	follow(t, db, 2, 9)
	follow(t, db, 3, 9)
	follow(t, db, 4, 9)

	count, err := repo.CountFollowersAmong(9, []uint{2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountFollowersAmong(9, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
