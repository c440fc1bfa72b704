package repository

import (
	"fmt"
	"time"

	"github.com/givehub/discovery-engine/internal/models"
)

// ItemRepository handles needs, teams and tags as queryable scoring items.
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// FindNeedsByIDs retrieves needs by id.
func (r *ItemRepository) FindNeedsByIDs(ids []uint) ([]models.Need, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var needs []models.Need
	if err := r.db.Where("id IN ?", ids).Find(&needs).Error; err != nil {
		return nil, fmt.Errorf("failed to find needs by ids: %w", err)
	}
	return needs, nil
}

// FindNeedsActiveSince returns open needs created or touched within the
// window. These are the trending candidates.
func (r *ItemRepository) FindNeedsActiveSince(since time.Time) ([]models.Need, error) {
	var needs []models.Need
	err := r.db.
		Where("open = ? AND (created_at >= ? OR updated_at >= ?)", true, since, since).
		Find(&needs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active needs: %w", err)
	}
	return needs, nil
}

// FindOpenNeedsByCategories returns open needs in the given categories,
// excluding the listed ids.
func (r *ItemRepository) FindOpenNeedsByCategories(categories []string, excludeIDs []uint, limit int) ([]models.Need, error) {
	var needs []models.Need
	query := r.db.Where("open = ?", true)
	if len(categories) > 0 {
		query = query.Where("category IN ?", categories)
	}
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("created_at DESC").Find(&needs).Error; err != nil {
		return nil, fmt.Errorf("failed to find needs by categories: %w", err)
	}
	return needs, nil
}

// FindPopularNeedsExcluding returns open needs ordered by supporter count,
// excluding the listed ids.
func (r *ItemRepository) FindPopularNeedsExcluding(excludeIDs []uint, limit int) ([]models.Need, error) {
	var needs []models.Need
	query := r.db.Where("open = ?", true)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("supporter_count DESC, id ASC").Find(&needs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find popular needs: %w", err)
	}
	return needs, nil
}

// FindOpenTeams returns open teams, largest first.
func (r *ItemRepository) FindOpenTeams(limit int) ([]models.Team, error) {
	var teams []models.Team
	query := r.db.Where("open = ?", true).Order("member_count DESC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("failed to find open teams: %w", err)
	}
	return teams, nil
}

// FindTagsByNames retrieves tag rows for the given names.
func (r *ItemRepository) FindTagsByNames(names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := r.db.Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to find tags: %w", err)
	}
	return tags, nil
}
