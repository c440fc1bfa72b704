package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/givehub/discovery-engine/internal/models"
)

// BadgeRepository handles badge-related database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// GetAll retrieves all badges from the database.
func (r *BadgeRepository) GetAll() ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Order("created_at ASC").Find(&badges).Error
	return badges, err
}

// GetByID retrieves a badge by its ID.
func (r *BadgeRepository) GetByID(id uint) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.First(&badge, id).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

// GetBySlug retrieves a badge by its slug.
func (r *BadgeRepository) GetBySlug(slug string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.Where("slug = ?", slug).First(&badge).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

// Award creates the (user, badge) pair. The composite unique index makes the
// operation atomic under concurrent attempts: ON CONFLICT DO NOTHING means a
// duplicate award is a benign no-op. Returns true only when this call created
// the row.
func (r *BadgeRepository) Award(userID, badgeID uint) (bool, error) {
	userBadge := &models.UserBadge{
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: time.Now(),
	}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(userBadge)
	if result.Error != nil {
		return false, fmt.Errorf("failed to award badge %d to user %d: %w", badgeID, userID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// HasUserEarnedBadge checks if a user has earned a specific badge.
func (r *BadgeRepository) HasUserEarnedBadge(userID, badgeID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserBadges retrieves all badges earned by a user with badge details preloaded.
func (r *BadgeRepository) GetUserBadges(userID uint) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("earned_at DESC").
		Find(&userBadges).Error
	return userBadges, err
}

// GetUserBadgeCount returns the total number of badges a user has earned.
func (r *BadgeRepository) GetUserBadgeCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// GetBadgeHoldersCount returns the number of users who have earned a specific badge.
func (r *BadgeRepository) GetBadgeHoldersCount(badgeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	return count, err
}

// SeedCatalog upserts badge definitions by slug. Existing badges keep their
// IDs and earned pairs; definitions are refreshed from the catalog.
func (r *BadgeRepository) SeedCatalog(badges []models.Badge) error {
	for i := range badges {
		badge := &badges[i]
		err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon", "points", "conditions", "updated_at"}),
		}).Create(badge).Error
		if err != nil {
			return fmt.Errorf("failed to seed badge %s: %w", badge.Slug, err)
		}
	}
	return nil
}
