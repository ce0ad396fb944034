package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a piece of content on one blog of the local network
type Post struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	BlogID   int64  `gorm:"not null;index;uniqueIndex:idx_post_origin,priority:1" json:"blog_id"`
	PostType string `gorm:"size:50;default:'post'" json:"post_type"`
	Title    string `gorm:"size:500;not null" json:"title"`
	Slug     string `gorm:"size:200;index" json:"slug"`
	Content  string `gorm:"type:text" json:"content"`
	Excerpt  string `gorm:"type:text" json:"excerpt"`
	Status   string `gorm:"size:20;default:'publish'" json:"status"`
	Terms    string `gorm:"type:jsonb" json:"terms"`

	// Set on copies created by a distribution
	OriginBlogID *int64 `gorm:"uniqueIndex:idx_post_origin,priority:2" json:"origin_blog_id,omitempty"`
	OriginPostID *int64 `gorm:"uniqueIndex:idx_post_origin,priority:3" json:"origin_post_id,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (Post) TableName() string {
	return "contentsync_posts"
}

const (
	PostStatusPublish = "publish"
	PostStatusDraft   = "draft"
	PostStatusTrash   = "trash"
)
