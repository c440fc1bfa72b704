package repository

import (
	"fmt"
	"time"

	"github.com/givehub/discovery-engine/internal/models"
)

// UserPointSum is a per-user windowed sum of ledger points.
type UserPointSum struct {
	UserID uint `json:"user_id"`
	Points int  `json:"points"`
}

// TransactionRepository handles the append-only point ledger.
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append writes a new ledger row. Rows are immutable once written.
func (r *TransactionRepository) Append(tx *models.PointTransaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if err := r.db.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// SumPointsByUser returns the signed sum of a user's ledger points.
// A nil since sums the full ledger (replay equivalence check).
func (r *TransactionRepository) SumPointsByUser(userID uint, since *time.Time) (int, error) {
	var total *int
	query := r.db.Model(&models.PointTransaction{}).
		Select("SUM(points)").
		Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	if err := query.Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum points for user %d: %w", userID, err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// SumPointsGroupedByUser returns per-user point sums within [since, now],
// sorted by points descending. Windowed leaderboards are built from this.
func (r *TransactionRepository) SumPointsGroupedByUser(since time.Time) ([]UserPointSum, error) {
	var sums []UserPointSum
	err := r.db.Model(&models.PointTransaction{}).
		Select("user_id, SUM(points) AS points").
		Where("created_at >= ?", since).
		Group("user_id").
		Order("points DESC, user_id ASC").
		Scan(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum points by user: %w", err)
	}
	return sums, nil
}

// ListByUser returns a user's ledger rows, newest first.
func (r *TransactionRepository) ListByUser(userID uint, limit int) ([]models.PointTransaction, error) {
	var txs []models.PointTransaction
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	return txs, nil
}

// ListByUserActions returns a user's ledger rows restricted to the given
// actions, oldest first. The preference profile builder reads interactions
// through this.
func (r *TransactionRepository) ListByUserActions(userID uint, actions []models.Action) ([]models.PointTransaction, error) {
	var txs []models.PointTransaction
	err := r.db.
		Where("user_id = ? AND action IN ?", userID, actions).
		Order("created_at ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	return txs, nil
}

// CountByUserAction counts a user's ledger rows for one action.
func (r *TransactionRepository) CountByUserAction(userID uint, action models.Action) (int64, error) {
	var count int64
	err := r.db.Model(&models.PointTransaction{}).
		Where("user_id = ? AND action = ?", userID, action).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count %s transactions for user %d: %w", action, userID, err)
	}
	return count, nil
}

// UserActionCount is a per-user count of one action within a window.
type UserActionCount struct {
	UserID uint `json:"user_id"`
	Count  int  `json:"count"`
}

// CountActionsGroupedByUser counts rows for one action per user within
// [since, now]. Trending user scoring reads windowed creation and
// contribution counts through this.
func (r *TransactionRepository) CountActionsGroupedByUser(action models.Action, since time.Time) ([]UserActionCount, error) {
	var counts []UserActionCount
	err := r.db.Model(&models.PointTransaction{}).
		Select("user_id, COUNT(*) AS count").
		Where("action = ? AND created_at >= ?", action, since).
		Group("user_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count %s actions by user: %w", action, err)
	}
	return counts, nil
}

// UserItemOverlap counts how many distinct items from a set a user touched.
type UserItemOverlap struct {
	UserID uint `json:"user_id"`
	Items  int  `json:"items"`
}

// ListUsersInteractedWithItems returns, per user, how many distinct needs
// from the given set they interacted with. The requesting user is excluded.
func (r *TransactionRepository) ListUsersInteractedWithItems(itemIDs []uint, excludeUserID uint) ([]UserItemOverlap, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var overlaps []UserItemOverlap
	err := r.db.Model(&models.PointTransaction{}).
		Select("user_id, COUNT(DISTINCT related_id) AS items").
		Where("related_model = ? AND related_id IN ? AND action IN ? AND user_id <> ?",
			"need", itemIDs, InteractionActionNames(), excludeUserID).
		Group("user_id").
		Scan(&overlaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users by item overlap: %w", err)
	}
	return overlaps, nil
}

// ItemSupport counts how many distinct users from a set touched an item.
type ItemSupport struct {
	RelatedID uint `json:"related_id"`
	Users     int  `json:"users"`
}

// CountUsersPerItem returns, per need, how many distinct users from the
// given set interacted with it, skipping the excluded item ids.
func (r *TransactionRepository) CountUsersPerItem(userIDs, excludeItemIDs []uint) ([]ItemSupport, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := r.db.Model(&models.PointTransaction{}).
		Select("related_id, COUNT(DISTINCT user_id) AS users").
		Where("related_model = ? AND user_id IN ? AND action IN ?",
			"need", userIDs, InteractionActionNames())
	if len(excludeItemIDs) > 0 {
		query = query.Where("related_id NOT IN ?", excludeItemIDs)
	}
	var support []ItemSupport
	if err := query.Group("related_id").Scan(&support).Error; err != nil {
		return nil, fmt.Errorf("failed to count users per item: %w", err)
	}
	return support, nil
}

// InteractionActionNames returns the interaction action set as strings for
// SQL IN clauses.
func InteractionActionNames() []string {
	names := make([]string, 0, len(models.InteractionActions))
	for _, a := range models.InteractionActions {
		names = append(names, string(a))
	}
	return names
}

// ListUserIDs returns the distinct user ids present in the ledger.
func (r *TransactionRepository) ListUserIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.PointTransaction{}).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger user ids: %w", err)
	}
	return ids, nil
}
