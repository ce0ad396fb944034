package models

import (
	"time"

	"github.com/ifuryst/contentsync/internal/destination"
)

// QueueItem is one persisted distribution job
type QueueItem struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	Status      destination.Status `gorm:"size:20;not null;default:'init';index" json:"status"`
	Posts       string             `gorm:"type:jsonb;not null" json:"posts"`
	Destination string             `gorm:"type:jsonb;not null" json:"destination"`
	Time        time.Time          `gorm:"autoCreateTime;index" json:"time"`
	Origin      string             `gorm:"size:100" json:"origin"`
	OriginID    string             `gorm:"size:255" json:"origin_id"`
	Error       *string            `gorm:"type:jsonb" json:"error"`
	Attempts    int                `gorm:"default:0" json:"attempts"`
	LockedBy    *string            `gorm:"size:64" json:"locked_by,omitempty"`
	LockedUntil *time.Time         `gorm:"index" json:"locked_until,omitempty"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QueueItem) TableName() string {
	return "contentsync_queue"
}

// PostsPayload identifies the origin content of a queue item
type PostsPayload struct {
	BlogID  int64   `json:"blog_id"`
	PostIDs []int64 `json:"post_ids"`
}

// ErrorKind separates failures reported by the distribution itself from
// failures to reach the destination at all
type ErrorKind string

const (
	ErrorKindBusiness  ErrorKind = "business"
	ErrorKindTransport ErrorKind = "transport"
)

// ItemError is the JSON stored in QueueItem.Error
type ItemError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
