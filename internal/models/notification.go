package models

import "time"

// Notification is a durable, per-user record of a domain event.
// Title and Message never change after creation; only the read state does.
type Notification struct {
	BaseModel

	UserID  string `gorm:"type:uuid;not null;index:idx_notifications_user_read" json:"user_id"`
	Type    string `gorm:"size:32;not null" json:"type"`
	Title   string `gorm:"size:255;not null" json:"title"`
	Message string `gorm:"type:text;not null" json:"message"`

	RelatedTaskID *string `gorm:"size:64;index" json:"related_task_id"`
	RelatedTeamID *string `gorm:"size:64" json:"related_team_id"`

	IsRead bool       `gorm:"default:false;index:idx_notifications_user_read" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
