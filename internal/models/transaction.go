// Package models defines domain models for the discovery and gamification engine.
package models

import (
	"time"
)

// Action identifies a point-scoring user action recorded in the ledger.
type Action string

// Ledger actions.
const (
	ActionNeedCreated    Action = "need_created"
	ActionNeedSupported  Action = "need_supported"
	ActionNeedCompleted  Action = "need_completed"
	ActionCommentPosted  Action = "comment_posted"
	ActionUpvoteReceived Action = "upvote_received"
	ActionNeedFollowed   Action = "need_followed"
	ActionUserFollowed   Action = "user_followed"
	ActionTeamCreated    Action = "team_created"
	ActionTeamJoined     Action = "team_joined"
	ActionTaskCompleted  Action = "task_completed"
	ActionStoryShared    Action = "story_shared"
	ActionBadgeEarned    Action = "badge_earned"
	ActionLevelUp        Action = "level_up"
	ActionPenalty        Action = "penalty"
	ActionDailyLogin     Action = "daily_login"
)

// defaultPoints maps each action to the points it awards by default.
// Penalty amounts are caller-supplied, so the entry here is zero.
var defaultPoints = map[Action]int{
	ActionNeedCreated:    100,
	ActionNeedSupported:  50,
	ActionNeedCompleted:  200,
	ActionCommentPosted:  10,
	ActionUpvoteReceived: 5,
	ActionNeedFollowed:   5,
	ActionUserFollowed:   5,
	ActionTeamCreated:    75,
	ActionTeamJoined:     25,
	ActionTaskCompleted:  40,
	ActionStoryShared:    30,
	ActionDailyLogin:     10,
	ActionPenalty:        0,
}

// DefaultPoints returns the default point value for an action.
// Unknown actions are worth zero points.
func (a Action) DefaultPoints() int {
	return defaultPoints[a]
}

// InteractionActions are the ledger actions that count as item interactions
// when deriving a user's preference profile.
var InteractionActions = []Action{
	ActionNeedSupported,
	ActionUpvoteReceived,
	ActionCommentPosted,
	ActionNeedFollowed,
}

// PointTransaction is an immutable row in the append-only point ledger.
// Rows are never updated or deleted; corrections are written as new
// compensating penalty transactions. The signed sum of a user's rows is
// their total score.
type PointTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_tx_user_time" json:"user_id"`
	Action       Action    `gorm:"size:50;not null;index" json:"action"`
	Points       int       `gorm:"not null" json:"points"`
	Description  string    `gorm:"type:text" json:"description"`
	RelatedModel string    `gorm:"size:50" json:"related_model,omitempty"`
	RelatedID    uint      `gorm:"index" json:"related_id,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index:idx_tx_user_time" json:"created_at"`
}

// TableName specifies the table name for PointTransaction model.
func (PointTransaction) TableName() string {
	return "point_transactions"
}
