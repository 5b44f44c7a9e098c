package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent stores each processor event once
type WebhookEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Provider  string         `gorm:"type:varchar(20);not null" json:"provider"`
	EventID   string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"event_id"`
	EventType string         `gorm:"type:varchar(100);not null" json:"event_type"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Processed bool           `gorm:"not null;default:false" json:"processed"`
	CreatedAt time.Time      `json:"created_at"`
}

func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
