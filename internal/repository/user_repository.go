package repository

import (
	"fmt"

	"github.com/givehub/discovery-engine/internal/models"
)

// UserRepository handles user and follow-graph database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByIDs retrieves users by id.
func (r *UserRepository) GetByIDs(ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	return users, nil
}

// ListFolloweeIDs returns the ids a user follows.
func (r *UserRepository) ListFolloweeIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list followees for user %d: %w", userID, err)
	}
	return ids, nil
}

// ListMutualFollowIDs returns users who follow userID and are followed back.
func (r *UserRepository) ListMutualFollowIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Follow{}).
		Joins("JOIN follows back ON back.follower_id = follows.followee_id AND back.followee_id = follows.follower_id").
		Where("follows.follower_id = ?", userID).
		Pluck("follows.followee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mutual follows for user %d: %w", userID, err)
	}
	return ids, nil
}

// ListFolloweesOfUsers returns the ids followed by any of the given users.
func (r *UserRepository) ListFolloweesOfUsers(userIDs []uint) ([]uint, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.Model(&models.Follow{}).
		Where("follower_id IN ?", userIDs).
		Distinct("followee_id").
		Pluck("followee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list followees of users: %w", err)
	}
	return ids, nil
}

// CountFollowersAmong counts how many of the given users follow candidateID.
func (r *UserRepository) CountFollowersAmong(candidateID uint, userIDs []uint) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.Follow{}).
		Where("followee_id = ? AND follower_id IN ?", candidateID, userIDs).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count followers of user %d: %w", candidateID, err)
	}
	return count, nil
}
