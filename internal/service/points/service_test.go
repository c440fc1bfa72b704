package points

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/givehub/discovery-engine/internal/config"
	"github.com/givehub/discovery-engine/internal/events"
	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/repository"
	"github.com/givehub/discovery-engine/pkg/logger"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.PointsChanged
}

func (p *capturingPublisher) PublishPointsChanged(event events.PointsChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestDB(t *testing.T) *repository.DB {
	t.Helper()
	// A named shared-cache database keeps one schema across the pooled
	// connections while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	db := &repository.DB{DB: gormDB}
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestService(t *testing.T, leveling config.LevelingConfig) (*Service, *repository.TransactionRepository, *repository.AggregateRepository, *capturingPublisher) {
	t.Helper()
	db := newTestDB(t)
	txRepo := repository.NewTransactionRepository(db)
	aggRepo := repository.NewAggregateRepository(db)
	publisher := &capturingPublisher{}
	svc := NewService(txRepo, aggRepo, publisher, leveling, logger.Nop())
	return svc, txRepo, aggRepo, publisher
}

func defaultLeveling() config.LevelingConfig {
	return config.LevelingConfig{PointsPerLevel: 500, LevelUpBonusStep: 50}
}

func TestAwardSequenceSumsSigned(t *testing.T) {
	svc, txRepo, aggRepo, publisher := newTestService(t, defaultLeveling())
	ctx := context.Background()

	_, err := svc.Award(ctx, 1, models.ActionNeedCreated, AwardOptions{})
	require.NoError(t, err)
	_, err = svc.Award(ctx, 1, models.ActionNeedSupported, AwardOptions{})
	require.NoError(t, err)
	_, err = svc.Penalize(ctx, 1, 20, "spam report upheld")
	require.NoError(t, err)

	agg, err := aggRepo.Get(1)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 130, agg.TotalPoints)
	assert.Equal(t, 1, agg.CurrentLevel)
	assert.Equal(t, 1, agg.NeedsCreated)
	assert.Equal(t, 1, agg.NeedsSupported)
	assert.Equal(t, 2, agg.TotalContributions)

	sum, err := txRepo.SumPointsByUser(1, nil)
	require.NoError(t, err)
	assert.Equal(t, agg.TotalPoints, sum)

	assert.Equal(t, 3, publisher.count())
}

func TestAwardUsesDefaultPointsWhenZero(t *testing.T) {
	svc, _, _, _ := newTestService(t, defaultLeveling())

	tx, err := svc.Award(context.Background(), 1, models.ActionCommentPosted, AwardOptions{Description: "first comment"})
	require.NoError(t, err)
	assert.Equal(t, 10, tx.Points)
}

func TestAwardExplicitPointsOverrideDefault(t *testing.T) {
	svc, _, _, _ := newTestService(t, defaultLeveling())

	tx, err := svc.Award(context.Background(), 1, models.ActionNeedCreated, AwardOptions{Points: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, tx.Points)
}

func TestLevelUpAwardsBonusOnce(t *testing.T) {
	svc, txRepo, aggRepo, _ := newTestService(t, defaultLeveling())
	ctx := context.Background()

	// 600 points crosses into level 2; the bonus is 2*50.
	_, err := svc.Award(ctx, 1, models.ActionNeedCreated, AwardOptions{Points: 600})
	require.NoError(t, err)

	agg, err := aggRepo.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 700, agg.TotalPoints)
	assert.Equal(t, 2, agg.CurrentLevel)

	txs, err := txRepo.ListByUser(1, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	var bonus *models.PointTransaction
	for i := range txs {
		if txs[i].Action == models.ActionLevelUp {
			bonus = &txs[i]
		}
	}
	require.NotNil(t, bonus)
	assert.Equal(t, 100, bonus.Points)

	sum, err := txRepo.SumPointsByUser(1, nil)
	require.NoError(t, err)
	assert.Equal(t, agg.TotalPoints, sum)
}

func TestPenaltyDropsLevelWithoutBonus(t *testing.T) {
	svc, txRepo, aggRepo, _ := newTestService(t, defaultLeveling())
	ctx := context.Background()

	_, err := svc.Award(ctx, 1, models.ActionNeedCreated, AwardOptions{Points: 600})
	require.NoError(t, err)
	_, err = svc.Penalize(ctx, 1, 650, "refund")
	require.NoError(t, err)

	agg, err := aggRepo.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 50, agg.TotalPoints)
	assert.Equal(t, 1, agg.CurrentLevel)

	// Exactly one level_up row: the upward crossing paid out, the downward
	// one did not.
	count, err := txRepo.CountByUserAction(1, models.ActionLevelUp)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAwardBonusDoesNotPublish(t *testing.T) {
	svc, _, _, publisher := newTestService(t, defaultLeveling())

	_, err := svc.AwardBonus(context.Background(), 1, models.ActionBadgeEarned, AwardOptions{Points: 25})
	require.NoError(t, err)
	assert.Equal(t, 0, publisher.count())
}

func TestLevelForPoints(t *testing.T) {
	svc, _, _, _ := newTestService(t, config.LevelingConfig{PointsPerLevel: 500, LevelUpBonusStep: 50, MaxLevel: 5})

	assert.Equal(t, 1, svc.LevelForPoints(0))
	assert.Equal(t, 1, svc.LevelForPoints(499))
	assert.Equal(t, 2, svc.LevelForPoints(500))
	assert.Equal(t, 5, svc.LevelForPoints(10000))
	assert.Equal(t, 1, svc.LevelForPoints(-50))
}

func TestVerifyAndRecomputeFromLedger(t *testing.T) {
	svc, txRepo, aggRepo, _ := newTestService(t, defaultLeveling())
	ctx := context.Background()

	_, err := svc.Award(ctx, 1, models.ActionNeedCreated, AwardOptions{})
	require.NoError(t, err)
	_, err = svc.Award(ctx, 1, models.ActionTaskCompleted, AwardOptions{})
	require.NoError(t, err)

	consistent, err := svc.VerifyAggregate(ctx, 1)
	require.NoError(t, err)
	assert.True(t, consistent)

	// Corrupt the aggregate behind the pipeline's back.
	require.NoError(t, aggRepo.Rebuild(&models.UserAggregate{UserID: 1, TotalPoints: 9999, CurrentLevel: 1}))

	consistent, err = svc.VerifyAggregate(ctx, 1)
	require.NoError(t, err)
	assert.False(t, consistent)

	rebuilt, err := svc.RecomputeFromLedger(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 140, rebuilt.TotalPoints)
	assert.Equal(t, 1, rebuilt.NeedsCreated)
	assert.Equal(t, 1, rebuilt.TasksCompleted)
	assert.Equal(t, 2, rebuilt.TotalContributions)

	sum, err := txRepo.SumPointsByUser(1, nil)
	require.NoError(t, err)
	assert.Equal(t, rebuilt.TotalPoints, sum)
}

func TestReconcileAllRepairsDivergedAggregates(t *testing.T) {
	svc, _, aggRepo, _ := newTestService(t, defaultLeveling())
	ctx := context.Background()

	_, err := svc.Award(ctx, 1, models.ActionNeedCreated, AwardOptions{})
	require.NoError(t, err)
	_, err = svc.Award(ctx, 2, models.ActionNeedSupported, AwardOptions{})
	require.NoError(t, err)

	require.NoError(t, aggRepo.Rebuild(&models.UserAggregate{UserID: 2, TotalPoints: 1, CurrentLevel: 1}))

	checked, repaired, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Equal(t, 1, repaired)

	agg, err := aggRepo.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 50, agg.TotalPoints)
}

func TestConcurrentAwardsKeepReplayEquivalence(t *testing.T) {
	svc, txRepo, aggRepo, _ := newTestService(t, defaultLeveling())
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Award(ctx, 7, models.ActionCommentPosted, AwardOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	agg, err := aggRepo.Get(7)
	require.NoError(t, err)
	sum, err := txRepo.SumPointsByUser(7, nil)
	require.NoError(t, err)
	assert.Equal(t, sum, agg.TotalPoints)
	assert.Equal(t, workers*10, agg.TotalPoints)
}
