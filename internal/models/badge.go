package models

import (
	"encoding/json"
	"time"
)

// ConditionType classifies how a badge condition is evaluated.
type ConditionType string

// Badge condition types. Streak, milestone and custom are reserved: they
// parse and persist but always evaluate to false until a real evaluator
// backs them.
const (
	ConditionPoints    ConditionType = "points"
	ConditionCount     ConditionType = "count"
	ConditionStreak    ConditionType = "streak"
	ConditionMilestone ConditionType = "milestone"
	ConditionCustom    ConditionType = "custom"
)

// Implemented reports whether this condition type has a working evaluator.
func (t ConditionType) Implemented() bool {
	return t == ConditionPoints || t == ConditionCount
}

// BadgeCondition is a single predicate in a badge's condition list.
// All conditions of a badge must hold for the badge to be earned.
type BadgeCondition struct {
	Type   ConditionType `json:"type" yaml:"type"`
	Action Action        `json:"action,omitempty" yaml:"action,omitempty"` // for count conditions
	Target int           `json:"target" yaml:"target"`
}

// Badge represents an earnable badge with its ordered condition list and
// the bonus points granted on award.
type Badge struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Slug        string          `gorm:"uniqueIndex;not null;size:100" json:"slug"`
	Name        string          `gorm:"not null;size:100" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Icon        string          `gorm:"size:50" json:"icon"`
	Points      int             `gorm:"not null;default:0" json:"points"`
	Conditions  json.RawMessage `gorm:"type:jsonb" json:"conditions"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// ParseConditions decodes the badge's stored condition list.
func (b *Badge) ParseConditions() ([]BadgeCondition, error) {
	var conditions []BadgeCondition
	if len(b.Conditions) == 0 {
		return conditions, nil
	}
	if err := json.Unmarshal(b.Conditions, &conditions); err != nil {
		return nil, err
	}
	return conditions, nil
}

// UserBadge is a unique (user, badge) pair created once when a badge is
// earned. Badges are never revoked; the composite unique index is the
// storage-level guard against duplicate awards.
type UserBadge struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_user_badge" json:"user_id"`
	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BadgeID  uint      `gorm:"not null;uniqueIndex:idx_user_badge" json:"badge_id"`
	Badge    Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}
