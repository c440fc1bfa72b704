package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/givehub/discovery-engine/internal/models"
)

// Aggregate metric columns rankers may sort or filter on. Anything else is
// rejected before reaching SQL.
var aggregateColumns = map[string]bool{
	"total_points":        true,
	"current_level":       true,
	"needs_created":       true,
	"needs_supported":     true,
	"tasks_completed":     true,
	"teams_created":       true,
	"total_contributions": true,
	"badges_count":        true,
}

// AggregateRepository handles per-user rolling aggregates.
type AggregateRepository struct {
	db *DB
}

// NewAggregateRepository creates a new aggregate repository.
func NewAggregateRepository(db *DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// Get retrieves a user's aggregate. Returns (nil, nil) when the user has no
// aggregate row; a missing user is distinct from a zero-score user.
func (r *AggregateRepository) Get(userID uint) (*models.UserAggregate, error) {
	var agg models.UserAggregate
	err := r.db.First(&agg, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate for user %d: %w", userID, err)
	}
	return &agg, nil
}

// ListTop returns aggregates sorted descending by the given metric column.
// The sort is stable with respect to insertion order: ties keep user_id order.
func (r *AggregateRepository) ListTop(column string, limit int) ([]models.UserAggregate, error) {
	if !aggregateColumns[column] {
		return nil, fmt.Errorf("unknown aggregate column: %s", column)
	}
	var aggs []models.UserAggregate
	query := r.db.Order(column + " DESC, user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&aggs).Error; err != nil {
		return nil, fmt.Errorf("failed to list aggregates by %s: %w", column, err)
	}
	return aggs, nil
}

// CountWithMetricGreaterThan counts users whose metric strictly exceeds the
// threshold. Rank = this count + 1.
func (r *AggregateRepository) CountWithMetricGreaterThan(column string, threshold int) (int64, error) {
	if !aggregateColumns[column] {
		return 0, fmt.Errorf("unknown aggregate column: %s", column)
	}
	var count int64
	err := r.db.Model(&models.UserAggregate{}).
		Where(column+" > ?", threshold).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count aggregates by %s: %w", column, err)
	}
	return count, nil
}

// CountAll returns the total number of aggregate rows.
func (r *AggregateRepository) CountAll() (int64, error) {
	var count int64
	if err := r.db.Model(&models.UserAggregate{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count aggregates: %w", err)
	}
	return count, nil
}

// ApplyDelta adds points to a user's total and bumps the named counter
// columns, creating the aggregate row if it does not exist yet. The caller
// serializes calls per user.
func (r *AggregateRepository) ApplyDelta(userID uint, points int, counters map[string]int) error {
	for column := range counters {
		if !aggregateColumns[column] {
			return fmt.Errorf("unknown aggregate column: %s", column)
		}
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		agg := models.UserAggregate{UserID: userID, CurrentLevel: 1}
		if err := tx.Where("user_id = ?", userID).FirstOrCreate(&agg).Error; err != nil {
			return fmt.Errorf("failed to ensure aggregate for user %d: %w", userID, err)
		}

		updates := map[string]interface{}{
			"total_points":     gorm.Expr("total_points + ?", points),
			"last_activity_at": time.Now(),
		}
		for column, delta := range counters {
			updates[column] = gorm.Expr(column+" + ?", delta)
		}

		err := tx.Model(&models.UserAggregate{}).
			Where("user_id = ?", userID).
			Updates(updates).Error
		if err != nil {
			return fmt.Errorf("failed to apply delta for user %d: %w", userID, err)
		}
		return nil
	})
}

// SetLevel stores the recomputed level for a user.
func (r *AggregateRepository) SetLevel(userID uint, level int) error {
	err := r.db.Model(&models.UserAggregate{}).
		Where("user_id = ?", userID).
		Update("current_level", level).Error
	if err != nil {
		return fmt.Errorf("failed to set level for user %d: %w", userID, err)
	}
	return nil
}

// Rebuild replaces a user's aggregate with a replayed snapshot.
func (r *AggregateRepository) Rebuild(agg *models.UserAggregate) error {
	if err := r.db.Save(agg).Error; err != nil {
		return fmt.Errorf("failed to rebuild aggregate for user %d: %w", agg.UserID, err)
	}
	return nil
}
