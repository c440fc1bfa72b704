package models

import (
	"time"
)

// Need is a donation or volunteering request. The counter columns are the
// interaction totals the trending scorer reads.
type Need struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatorID      uint      `gorm:"not null;index" json:"creator_id"`
	Title          string    `gorm:"not null;size:255" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Category       string    `gorm:"size:100;index" json:"category"`
	Tags           []string  `gorm:"serializer:json" json:"tags,omitempty"`
	Location       string    `gorm:"size:100;index" json:"location"`
	Urgent         bool      `gorm:"default:false" json:"urgent"`
	Open           bool      `gorm:"default:true;index" json:"open"`
	ViewCount      int       `gorm:"not null;default:0" json:"view_count"`
	CommentCount   int       `gorm:"not null;default:0" json:"comment_count"`
	ShareCount     int       `gorm:"not null;default:0" json:"share_count"`
	SupporterCount int       `gorm:"not null;default:0" json:"supporter_count"`
	FollowCount    int       `gorm:"not null;default:0" json:"follow_count"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for Need model.
func (Need) TableName() string {
	return "needs"
}

// Interactions is the unweighted interaction sum used by trending scoring.
func (n *Need) Interactions() int {
	return n.CommentCount + n.ShareCount + n.SupporterCount + n.FollowCount
}

// Team is a group of users organized around a cause.
type Team struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:100;index" json:"category"`
	Location    string    `gorm:"size:100" json:"location"`
	Tags        []string  `gorm:"serializer:json" json:"tags,omitempty"`
	Open        bool      `gorm:"default:true;index" json:"open"`
	MemberCount int       `gorm:"not null;default:0" json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Team model.
func (Team) TableName() string {
	return "teams"
}

// Tag tracks cumulative usage of a content tag.
type Tag struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	UsageCount int       `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for Tag model.
func (Tag) TableName() string {
	return "tags"
}
