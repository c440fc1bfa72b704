package models

import (
	"time"
)

// User represents a platform member.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email     string    `gorm:"size:255" json:"email"`
	Location  string    `gorm:"size:100" json:"location"`
	Skills    []string  `gorm:"serializer:json" json:"skills,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// UserAggregate is the per-user rollup derived from the point ledger.
// It is eventually consistent with the ledger and can always be rebuilt
// by replaying the user's transactions. Only the point-award path writes
// it; rankers read it.
type UserAggregate struct {
	UserID             uint      `gorm:"primaryKey" json:"user_id"`
	TotalPoints        int       `gorm:"not null;default:0;index" json:"total_points"`
	CurrentLevel       int       `gorm:"not null;default:1" json:"current_level"`
	NeedsCreated       int       `gorm:"not null;default:0" json:"needs_created"`
	NeedsSupported     int       `gorm:"not null;default:0" json:"needs_supported"`
	TasksCompleted     int       `gorm:"not null;default:0" json:"tasks_completed"`
	TeamsCreated       int       `gorm:"not null;default:0" json:"teams_created"`
	TotalContributions int       `gorm:"not null;default:0" json:"total_contributions"`
	BadgesCount        int       `gorm:"not null;default:0" json:"badges_count"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserAggregate model.
func (UserAggregate) TableName() string {
	return "user_aggregates"
}

// Follow records one user following another. Mutual follows form the
// candidate pool for user recommendations.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_follow_pair" json:"follower_id"`
	FolloweeID uint      `gorm:"not null;uniqueIndex:idx_follow_pair" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for Follow model.
func (Follow) TableName() string {
	return "follows"
}
